// Package agent implements the on-device heuristic detector that runs on
// the tablets themselves: it samples the device through Termux, classifies
// running processes, infers session timeouts from inactivity, and submits
// the combined telemetry to the gateway.
package agent

import "strings"

// Class is a category of monitored application.
type Class string

const (
	// ClassBusiness covers the accounting suite whose session timeouts
	// this whole system exists to catch.
	ClassBusiness Class = "business"
	// ClassScanner covers barcode scanner software.
	ClassScanner Class = "scanner"
)

// Classifier maps process names onto application classes by substring.
type Classifier struct {
	patterns map[Class][]string
}

// NewClassifier creates a classifier from a pattern table.
func NewClassifier(patterns map[Class][]string) *Classifier {
	return &Classifier{patterns: patterns}
}

// DefaultClassifier returns the production pattern table.
func DefaultClassifier() *Classifier {
	return NewClassifier(map[Class][]string{
		ClassBusiness: {"com.myob", "au.com.myob", "myob", "accountright"},
		ClassScanner:  {"com.zebra", "barcode", "scanner", "honeywell", "datalogic"},
	})
}

// Classification is the result of matching a process list.
type Classification struct {
	// Matched lists, per class, the process lines that matched.
	Matched map[Class][]string
	// TotalProcesses is the size of the scanned process list.
	TotalProcesses int
}

// Active reports whether any process of the class was seen.
func (c Classification) Active(class Class) bool {
	return len(c.Matched[class]) > 0
}

// Classify matches every process line against the pattern table.
// Matching is case-insensitive; one line can match several classes.
func (c *Classifier) Classify(processes []string) Classification {
	result := Classification{
		Matched:        map[Class][]string{},
		TotalProcesses: len(processes),
	}
	for _, proc := range processes {
		lower := strings.ToLower(proc)
		for class, patterns := range c.patterns {
			for _, p := range patterns {
				if strings.Contains(lower, strings.ToLower(p)) {
					result.Matched[class] = append(result.Matched[class], strings.TrimSpace(proc))
					break
				}
			}
		}
	}
	return result
}
