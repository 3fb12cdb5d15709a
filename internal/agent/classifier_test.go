package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"fieldops.dev/tabletwatch/internal/agent"
)

var _ = Describe("Classifier", func() {
	var classifier *agent.Classifier

	BeforeEach(func() {
		classifier = agent.DefaultClassifier()
	})

	Describe("Classify", func() {
		It("should match business processes case-insensitively", func() {
			result := classifier.Classify([]string{
				"1234 pts/0 00:00:01 com.MYOB.accountright",
				"5678 pts/0 00:00:00 sshd",
			})

			Expect(result.TotalProcesses).To(Equal(2))
			Expect(result.Active(agent.ClassBusiness)).To(BeTrue())
			Expect(result.Active(agent.ClassScanner)).To(BeFalse())
			Expect(result.Matched[agent.ClassBusiness]).To(HaveLen(1))
		})

		It("should match scanner processes", func() {
			result := classifier.Classify([]string{
				"999 pts/0 00:00:03 com.zebra.datawedge",
			})

			Expect(result.Active(agent.ClassScanner)).To(BeTrue())
			Expect(result.Active(agent.ClassBusiness)).To(BeFalse())
		})

		It("should let one process match several classes", func() {
			result := classifier.Classify([]string{"myob-barcode-bridge"})

			Expect(result.Active(agent.ClassBusiness)).To(BeTrue())
			Expect(result.Active(agent.ClassScanner)).To(BeTrue())
		})

		It("should report nothing active on an empty process list", func() {
			result := classifier.Classify(nil)

			Expect(result.TotalProcesses).To(BeZero())
			Expect(result.Active(agent.ClassBusiness)).To(BeFalse())
			Expect(result.Active(agent.ClassScanner)).To(BeFalse())
		})

		It("should record each matching line only once per class", func() {
			custom := agent.NewClassifier(map[agent.Class][]string{
				agent.ClassScanner: {"barcode", "scanner"},
			})

			result := custom.Classify([]string{"barcode-scanner-service"})

			Expect(result.Matched[agent.ClassScanner]).To(HaveLen(1))
		})
	})
})
