package completion_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatserve/pkg/completion"
	"github.com/papercomputeco/chatserve/pkg/engine"
	"github.com/papercomputeco/chatserve/pkg/llm"
)

// fakeEngine returns a fixed completion and records the request it saw.
type fakeEngine struct {
	text string
	err  error
	seen []engine.Request
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Generate(ctx context.Context, req engine.Request) (string, error) {
	f.seen = append(f.seen, req)
	return f.text, f.err
}

func (f *fakeEngine) GenerateStream(ctx context.Context, req engine.Request, emit engine.StreamHandler) error {
	return errors.New("not used")
}

var _ = Describe("CountWords", func() {
	It("splits on any run of whitespace", func() {
		Expect(completion.CountWords("hello there")).To(Equal(2))
		Expect(completion.CountWords("  a\tb\n\nc  ")).To(Equal(3))
		Expect(completion.CountWords("")).To(BeZero())
		Expect(completion.CountWords(" \n ")).To(BeZero())
	})
})

var _ = Describe("Assembler", func() {
	var (
		eng *fakeEngine
		req *llm.ChatCompletionRequest
	)

	BeforeEach(func() {
		eng = &fakeEngine{text: "hello there"}
		req = llm.NewChatCompletionRequest()
		req.Model = "x"
		req.Messages = []llm.Message{{Role: llm.RoleUser, Content: "hi"}}
	})

	It("wraps the generated text as a single stop choice", func() {
		resp, err := completion.NewAssembler(eng).Assemble(context.Background(), "chatcmpl-1", req)
		Expect(err).NotTo(HaveOccurred())

		Expect(resp.ID).To(Equal("chatcmpl-1"))
		Expect(resp.Object).To(Equal("chat.completion"))
		Expect(resp.Model).To(Equal("x"))
		Expect(resp.Created).To(BeNumerically("~", time.Now().Unix(), 2))
		Expect(resp.Choices).To(HaveLen(1))
		Expect(resp.Choices[0].Index).To(BeZero())
		Expect(resp.Choices[0].Message).To(Equal(llm.Message{Role: "assistant", Content: "hello there"}))
		Expect(resp.Choices[0].FinishReason).To(Equal("stop"))
	})

	It("computes whitespace token accounting", func() {
		resp, err := completion.NewAssembler(eng).Assemble(context.Background(), "chatcmpl-1", req)
		Expect(err).NotTo(HaveOccurred())

		Expect(resp.Usage).To(Equal(llm.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}))
	})

	It("counts prompt words across every message joined by spaces", func() {
		req.Messages = []llm.Message{
			{Role: llm.RoleSystem, Content: "you are terse"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: ""},
			{Role: llm.RoleUser, Content: "how are you"},
		}

		resp, err := completion.NewAssembler(eng).Assemble(context.Background(), "chatcmpl-1", req)
		Expect(err).NotTo(HaveOccurred())

		Expect(resp.Usage.PromptTokens).To(Equal(7))
		Expect(resp.Usage.TotalTokens).To(Equal(resp.Usage.PromptTokens + resp.Usage.CompletionTokens))
	})

	It("passes the full history and generation parameters to the engine", func() {
		req.MaxTokens = 12
		req.Temperature = 1.5

		_, err := completion.NewAssembler(eng).Assemble(context.Background(), "chatcmpl-1", req)
		Expect(err).NotTo(HaveOccurred())

		Expect(eng.seen).To(HaveLen(1))
		Expect(eng.seen[0].Messages).To(Equal(req.Messages))
		Expect(eng.seen[0].MaxTokens).To(Equal(12))
		Expect(eng.seen[0].Temperature).To(Equal(1.5))
	})

	It("wraps engine failures in ErrGeneration", func() {
		boom := errors.New("boom")
		eng.err = boom

		_, err := completion.NewAssembler(eng).Assemble(context.Background(), "chatcmpl-1", req)
		Expect(err).To(MatchError(completion.ErrGeneration))
		Expect(err).To(MatchError(boom))
	})
})
