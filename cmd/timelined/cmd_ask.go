package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"timelined/internal/llm"
	"timelined/internal/timeline"
)

var (
	askOriginals bool
	askAdvisor   bool
	askSynthesis bool
	askAdmin     bool
	askPretty    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about your stored summaries",
	Long: `Ask sends one question through the grounded-answer engine.

With no question, the most recent items are summarized. --synthesis builds a
consolidated timeline across sources; --originals lets the engine pull the
original documents when the summaries are not enough.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var message string
		if len(args) == 1 {
			message = args[0]
		}

		reply, err := a.engine.Answer(ctx, timeline.Request{
			Message:        message,
			AllowOriginals: askOriginals,
			AdvisorMode:    askAdvisor,
			SynthesisMode:  askSynthesis,
			Admin:          askAdmin,
		})
		if err != nil {
			if pe, ok := llm.AsProviderError(err); ok {
				return fmt.Errorf("provider error (%s): %s", pe.Code, pe.Message)
			}
			return err
		}

		printReply(cmd, reply)
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askOriginals, "originals", false, "allow fetching original documents")
	askCmd.Flags().BoolVar(&askAdvisor, "advisor", false, "advisor mode: add grounded follow-up advice")
	askCmd.Flags().BoolVar(&askSynthesis, "synthesis", false, "synthesis mode: build a consolidated timeline")
	askCmd.Flags().BoolVar(&askAdmin, "admin", false, "admin caller: surface configuration errors instead of stub fallback")
	askCmd.Flags().BoolVar(&askPretty, "pretty", false, "render the reply as markdown in the terminal")
	rootCmd.AddCommand(askCmd)
}

func printReply(cmd *cobra.Command, reply timeline.Reply) {
	text := reply.Reply
	if askPretty {
		if renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
			if rendered, err := renderer.Render(text); err == nil {
				text = rendered
			}
		}
	}
	cmd.Println(strings.TrimRight(text, "\n"))

	if len(reply.Citations) > 0 {
		cmd.Println("\nSources:")
		for _, c := range reply.Citations {
			label := c.Title
			if c.DateISO != "" {
				label += " (" + c.DateISO + ")"
			}
			marker := fmt.Sprintf("[%d]", c.Index)
			if c.Kind == "original" {
				marker = fmt.Sprintf("[O%d]", c.Index)
			}
			cmd.Printf("  %s %s\n", marker, label)
		}
	}
	if len(reply.SuggestedActions) > 0 {
		cmd.Println("\nSuggested next steps:")
		for _, s := range reply.SuggestedActions {
			cmd.Printf("  - %s\n", s)
		}
	}
	cmd.Printf("\n(provider: %s/%s, request %s)\n", reply.Provider.Name, reply.Provider.Model, reply.RequestID)
}
