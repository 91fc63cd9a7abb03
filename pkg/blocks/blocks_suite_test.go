package blocks_test

import (
	"testing"

	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBlocks(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Blocks Suite")
}

var _ = Describe("Snapshot", func() {
	var state blocks.State

	BeforeEach(func() {
		state = blocks.NewState()
	})

	It("should be empty for a fresh state", func() {
		Expect(blocks.Snapshot(state)).To(BeEmpty())
	})

	It("should expose partial text immediately during streaming", func() {
		state = blocks.Reduce(state, events.TextDelta{Text: "par"})
		Expect(blocks.Snapshot(state)).To(HaveLen(1))

		state = blocks.Reduce(state, events.TextDelta{Text: "tial"})
		seq := blocks.Snapshot(state)
		Expect(seq).To(HaveLen(1))
		Expect(seq[0]).To(Equal(blocks.TextBlock{Text: "partial"}))
	})

	It("should return prefix-consistent snapshots across events", func() {
		state = blocks.Reduce(state, events.TextDelta{Text: "a"})
		state = blocks.Reduce(state, events.BlockStart{ToolID: "t1", ToolName: "lookup"})
		mid := blocks.Snapshot(state)

		state = blocks.Reduce(state, events.TextDelta{Text: "b"})
		later := blocks.Snapshot(state)

		// Every later snapshot starts with the earlier finalized prefix
		Expect(later[:len(mid)]).To(Equal(mid))
	})

	It("should reflect the latest tool state through the identity map", func() {
		state = blocks.Reduce(state, events.BlockStart{ToolID: "t1", ToolName: "lookup"})
		state = blocks.Reduce(state, events.CompleteMessage{
			ToolResults: []events.ToolResult{{ToolUseID: "t1", Content: "42"}},
		})

		seq := blocks.Snapshot(state)
		Expect(seq).To(HaveLen(1))
		tool := seq[0].(blocks.ToolBlock)
		Expect(tool.Result).To(Equal("42"))
		Expect(tool.Status).To(Equal(blocks.ToolSuccess))
	})
})

var _ = Describe("ToolStatus", func() {
	It("should render status names", func() {
		Expect(blocks.ToolLoading.String()).To(Equal("loading"))
		Expect(blocks.ToolSuccess.String()).To(Equal("success"))
		Expect(blocks.ToolError.String()).To(Equal("error"))
	})

	It("should treat success and error as terminal", func() {
		Expect(blocks.ToolLoading.Terminal()).To(BeFalse())
		Expect(blocks.ToolSuccess.Terminal()).To(BeTrue())
		Expect(blocks.ToolError.Terminal()).To(BeTrue())
	})
})
