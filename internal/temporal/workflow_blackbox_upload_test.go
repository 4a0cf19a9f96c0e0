package temporal

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"approval-tracker/internal/domain"
)

type activityTrace struct {
	mu sync.Mutex

	startedOrder   []string
	completedOrder []string

	validateIn  *ValidateUploadInput
	validateOut *ValidateUploadOutput
	registerIn  *RegisterVersionInput
	registerOut *RegisterVersionOutput
}

func (t *activityTrace) recordStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedOrder = append(t.startedOrder, name)
}

func (t *activityTrace) recordCompleted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedOrder = append(t.completedOrder, name)
}

func traceActivities(env *testsuite.TestWorkflowEnvironment) *activityTrace {
	trace := &activityTrace{}
	env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
		trace.recordStarted(info.ActivityType.Name)

		switch info.ActivityType.Name {
		case "ValidateUploadActivity":
			var in ValidateUploadInput
			_ = args.Get(&in)
			trace.mu.Lock()
			trace.validateIn = &in
			trace.mu.Unlock()
		case "RegisterVersionActivity":
			var in RegisterVersionInput
			_ = args.Get(&in)
			trace.mu.Lock()
			trace.registerIn = &in
			trace.mu.Unlock()
		}
	})
	env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, _ error) {
		trace.recordCompleted(info.ActivityType.Name)

		switch info.ActivityType.Name {
		case "ValidateUploadActivity":
			var out ValidateUploadOutput
			_ = result.Get(&out)
			trace.mu.Lock()
			trace.validateOut = &out
			trace.mu.Unlock()
		case "RegisterVersionActivity":
			var out RegisterVersionOutput
			_ = result.Get(&out)
			trace.mu.Lock()
			trace.registerOut = &out
			trace.mu.Unlock()
		}
	})
	return trace
}

var _ = Describe("VersionUploadWorkflow blackbox", func() {
	var (
		f     *fixture
		env   *testsuite.TestWorkflowEnvironment
		trace *activityTrace
	)

	BeforeEach(func() {
		var suite testsuite.WorkflowTestSuite
		env = suite.NewTestWorkflowEnvironment()
		f = newFixture()
		trace = traceActivities(env)

		env.RegisterWorkflow(VersionUploadWorkflow)
		env.RegisterActivity(f.acts.ValidateUploadActivity)
		env.RegisterActivity(f.acts.RegisterVersionActivity)

		f.store.seed(domain.Document{
			ID:        "doc-referent",
			Title:     "Gestión de Citas",
			Hierarchy: domain.HierarchyRefs{Project: domain.ProjectHPC, Microprocess: "Gestión de Citas", DocType: domain.DocTypeAsIs},
			State:     domain.StateSentToReferent,
			Version:   "v1.1",
			Progress:  80,
		})
	})

	It("moves a referent-round drop into the document and advances its state", func() {
		filename := "HPC - Gestión de Citas AS IS v1.1.1.docx"
		key := "inbox/doc-referent/" + filename

		By("dropping the analyst's referent round into the inbox")
		f.blob.drop(key, []byte("referent round one"))

		By("triggering the workflow the event handler would start")
		env.ExecuteWorkflow(VersionUploadWorkflow, VersionUploadInput{
			DocumentID: "doc-referent",
			Filename:   filename,
			ObjectKey:  key,
		})

		By("validating workflow completes successfully")
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result VersionUploadResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.Status).To(Equal(UploadStatusRegistered))
		Expect(result.Version).To(Equal("v1.1.1"))

		By("validating each activity input and output")
		Expect(trace.startedOrder).To(Equal([]string{"ValidateUploadActivity", "RegisterVersionActivity"}))
		Expect(trace.completedOrder).To(Equal([]string{"ValidateUploadActivity", "RegisterVersionActivity"}))

		Expect(trace.validateIn).ToNot(BeNil())
		Expect(trace.validateIn.Filename).To(Equal(filename))
		Expect(trace.validateOut).ToNot(BeNil())
		Expect(trace.validateOut.Valid).To(BeTrue())
		Expect(trace.validateOut.Errors).To(BeEmpty())

		Expect(trace.registerIn).ToNot(BeNil())
		Expect(trace.registerIn.ObjectKey).To(Equal(key))
		Expect(trace.registerIn.Version).To(Equal("v1.1.1"))
		Expect(trace.registerOut).ToNot(BeNil())
		Expect(trace.registerOut.State).To(Equal(domain.StateReferentReview))
		Expect(trace.registerOut.Progress).To(Equal(80))
		Expect(trace.registerOut.Skipped).To(BeFalse())

		By("validating the stored document and its history")
		doc := f.store.doc("doc-referent")
		Expect(doc.State).To(Equal(domain.StateReferentReview))
		Expect(doc.HasPendingRequest).To(BeTrue())
		Expect(doc.SubmittedBy).To(Equal(domain.SubmitterAnalyst))
		Expect(f.blob.has(key)).To(BeFalse())
		Expect(f.store.entries("doc-referent")).To(HaveLen(1))
	})

	It("stops after validation when the drop encodes another document type", func() {
		filename := "HPC - Gestión de Citas TO BE v1.1.1.docx"
		key := "inbox/doc-referent/" + filename
		f.blob.drop(key, []byte("wrong slot"))

		env.ExecuteWorkflow(VersionUploadWorkflow, VersionUploadInput{
			DocumentID: "doc-referent",
			Filename:   filename,
			ObjectKey:  key,
		})

		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result VersionUploadResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		Expect(result.Status).To(Equal(UploadStatusRejectedFilename))
		Expect(result.Errors).To(ConsistOf(ContainSubstring("expected document type AS_IS")))

		Expect(trace.startedOrder).To(Equal([]string{"ValidateUploadActivity"}))
		Expect(f.blob.has(key)).To(BeTrue(), "rejected drops stay in the inbox")
		Expect(f.store.doc("doc-referent").Version).To(Equal("v1.1"))
	})
})
