package chat_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	model "github.com/zhouzirui/promptdesk/internal/model/chat"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
	"github.com/zhouzirui/promptdesk/internal/service/chat"
)

func collect(c *chat.Conversation) []model.Turn {
	var turns []model.Turn
	for turn := range c.Render() {
		turns = append(turns, turn)
	}
	return turns
}

var _ = Describe("Conversation", func() {
	var (
		ctx     context.Context
		gen     *stubGenerator
		factory *countingFactory
		conv    *chat.Conversation
	)

	BeforeEach(func() {
		ctx = context.Background()
		gen = echoGenerator()
		factory = newCountingFactory(gen)
		conv = chat.NewConversation(factory.Build)
	})

	It("starts empty", func() {
		Expect(collect(conv)).To(BeEmpty())
		Expect(conv.Len()).To(Equal(0))
	})

	Describe("Submit", func() {
		It("appends the user turn and the echoed bot turn", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "hello", ModelID: "model-a", APIKey: "key"})).To(Succeed())

			turns := collect(conv)
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(model.RoleUser))
			Expect(turns[0].Content).To(Equal("hello"))
			Expect(turns[1].Role).To(Equal(model.RoleBot))
			Expect(turns[1].Content).To(Equal("ECHO:hello"))
			Expect(turns[0].ID).NotTo(Equal(turns[1].ID))
			Expect(gen.models).To(Equal([]string{"model-a"}))
		})

		It("keeps earlier turns unchanged across submissions", func() {
			gen.reply = func(_, prompt string) (string, error) {
				answers := map[string]string{"2+2?": "4", "3+3?": "6"}
				return answers[prompt], nil
			}

			Expect(conv.Submit(ctx, chat.Request{Prompt: "2+2?", ModelID: "model-a", APIKey: "key"})).To(Succeed())
			first := collect(conv)
			Expect(first).To(HaveLen(2))
			Expect(first[0].Content).To(Equal("2+2?"))
			Expect(first[1].Content).To(Equal("4"))

			Expect(conv.Submit(ctx, chat.Request{Prompt: "3+3?", ModelID: "model-a", APIKey: "key"})).To(Succeed())
			turns := collect(conv)
			Expect(turns).To(HaveLen(4))
			Expect(turns[:2]).To(Equal(first))
			Expect(turns[2].Content).To(Equal("3+3?"))
			Expect(turns[3].Content).To(Equal("6"))
		})

		It("alternates user and bot turns starting with user", func() {
			const n = 5
			for i := 0; i < n; i++ {
				Expect(conv.Submit(ctx, chat.Request{Prompt: fmt.Sprintf("q%d", i), APIKey: "key"})).To(Succeed())
			}

			turns := collect(conv)
			Expect(turns).To(HaveLen(2 * n))
			for i, turn := range turns {
				if i%2 == 0 {
					Expect(turn.Role).To(Equal(model.RoleUser))
				} else {
					Expect(turn.Role).To(Equal(model.RoleBot))
				}
			}
		})

		It("stores the prompt verbatim", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "  padded  ", APIKey: "key"})).To(Succeed())
			Expect(collect(conv)[0].Content).To(Equal("  padded  "))
		})

		It("rejects an empty credential without calling the service", func() {
			err := conv.Submit(ctx, chat.Request{Prompt: "hello", APIKey: ""})
			Expect(errors.Is(err, chat.ErrMissingCredential)).To(BeTrue())
			Expect(gen.Calls()).To(Equal(0))
			Expect(conv.Len()).To(Equal(0))
		})

		It("treats a whitespace-only credential as missing", func() {
			err := conv.Submit(ctx, chat.Request{Prompt: "hello", APIKey: "   "})
			Expect(errors.Is(err, chat.ErrMissingCredential)).To(BeTrue())
			Expect(factory.Builds("   ")).To(Equal(0))
			Expect(conv.Len()).To(Equal(0))
		})

		It("rejects a credential the factory cannot use", func() {
			factory.reject["bad"] = true
			err := conv.Submit(ctx, chat.Request{Prompt: "hello", APIKey: "bad"})
			Expect(errors.Is(err, chat.ErrMissingCredential)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("malformed api key"))
			Expect(gen.Calls()).To(Equal(0))
		})

		It("checks the credential before the prompt", func() {
			err := conv.Submit(ctx, chat.Request{Prompt: "   ", APIKey: ""})
			Expect(errors.Is(err, chat.ErrMissingCredential)).To(BeTrue())
		})

		It("rejects a whitespace-only prompt without calling the service", func() {
			for _, prompt := range []string{"", "   ", "\n\t"} {
				err := conv.Submit(ctx, chat.Request{Prompt: prompt, APIKey: "key"})
				Expect(err).To(MatchError(chat.ErrEmptyPrompt))
			}
			Expect(gen.Calls()).To(Equal(0))
			Expect(conv.Len()).To(Equal(0))
		})

		It("leaves history unchanged when the service fails", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "first", APIKey: "key"})).To(Succeed())

			gen.reply = func(string, string) (string, error) {
				return "", errors.New("429 quota exceeded")
			}
			err := conv.Submit(ctx, chat.Request{Prompt: "second", APIKey: "key"})

			var aiErr *ai.Error
			Expect(errors.As(err, &aiErr)).To(BeTrue())
			Expect(aiErr.Message).To(Equal("429 quota exceeded"))
			Expect(aiErr.Kind).To(Equal(ai.ErrRateLimit))
			Expect(conv.Len()).To(Equal(2))
		})

		It("rebuilds the client only when the key changes", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "a", APIKey: "k1"})).To(Succeed())
			Expect(conv.Submit(ctx, chat.Request{Prompt: "b", APIKey: "k1"})).To(Succeed())
			Expect(conv.Submit(ctx, chat.Request{Prompt: "c", APIKey: "k2"})).To(Succeed())

			Expect(factory.Builds("k1")).To(Equal(1))
			Expect(factory.Builds("k2")).To(Equal(1))
		})
	})

	Describe("Render", func() {
		It("can be ranged over more than once", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "hello", APIKey: "key"})).To(Succeed())
			Expect(collect(conv)).To(Equal(collect(conv)))
		})

		It("stops when the consumer stops", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "a", APIKey: "key"})).To(Succeed())
			Expect(conv.Submit(ctx, chat.Request{Prompt: "b", APIKey: "key"})).To(Succeed())

			seen := 0
			for range conv.Render() {
				seen++
				break
			}
			Expect(seen).To(Equal(1))
		})

		It("does not mutate state", func() {
			Expect(conv.Submit(ctx, chat.Request{Prompt: "hello", APIKey: "key"})).To(Succeed())
			_ = collect(conv)
			Expect(conv.Len()).To(Equal(2))
		})
	})

	Describe("while a submission is in flight", func() {
		var (
			started chan string
			release chan struct{}
		)

		BeforeEach(func() {
			started = make(chan string, 2)
			release = make(chan struct{})
			gen.reply = func(_, prompt string) (string, error) {
				started <- prompt
				<-release
				return "ECHO:" + prompt, nil
			}
		})

		It("answers reads without waiting for the service", func() {
			done := make(chan error, 1)
			go func() {
				done <- conv.Submit(ctx, chat.Request{Prompt: "slow", APIKey: "key"})
			}()
			Eventually(started).Should(Receive(Equal("slow")))

			Expect(conv.Len()).To(Equal(0))
			Expect(collect(conv)).To(BeEmpty())
			Expect(conv.Turns()).To(BeEmpty())

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(conv.Len()).To(Equal(2))
		})

		It("runs submissions one at a time", func() {
			first := make(chan error, 1)
			second := make(chan error, 1)
			go func() {
				first <- conv.Submit(ctx, chat.Request{Prompt: "one", APIKey: "key"})
			}()
			Eventually(started).Should(Receive(Equal("one")))

			go func() {
				second <- conv.Submit(ctx, chat.Request{Prompt: "two", APIKey: "key"})
			}()
			Consistently(started, 150*time.Millisecond).ShouldNot(Receive())
			Expect(gen.Calls()).To(Equal(1))

			close(release)
			Eventually(first).Should(Receive(BeNil()))
			Eventually(second).Should(Receive(BeNil()))

			turns := collect(conv)
			Expect(turns).To(HaveLen(4))
			Expect(turns[0].Content).To(Equal("one"))
			Expect(turns[2].Content).To(Equal("two"))
		})
	})

	It("clears history on Reset", func() {
		Expect(conv.Submit(ctx, chat.Request{Prompt: "hello", APIKey: "key"})).To(Succeed())
		conv.Reset()
		Expect(conv.Len()).To(Equal(0))

		Expect(conv.Submit(ctx, chat.Request{Prompt: "again", APIKey: "key"})).To(Succeed())
		Expect(factory.Builds("key")).To(Equal(1))
	})
})
