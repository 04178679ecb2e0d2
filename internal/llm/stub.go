package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// StubClient is the deterministic offline provider. It never fails and its
// output is plain prose assembled from the source headers it finds in the
// request, so the orchestrator can use it verbatim without a router parse.
type StubClient struct{}

// NewStubClient returns the stub provider.
func NewStubClient() *StubClient { return &StubClient{} }

func (s *StubClient) Name() string { return StubProviderName }

var sourceHeaderRe = regexp.MustCompile(`(?m)^SOURCE (\d+) \(([A-Z ]+)\): ([^\[\n]+)`)

// Complete produces a deterministic reply that references every source header
// present in the conversation.
func (s *StubClient) Complete(_ context.Context, req Request) (Response, error) {
	var sb strings.Builder
	sb.WriteString("No language model is configured, so this is an offline summary of the matched sources.")

	headers := sourceHeaderRe.FindAllStringSubmatch(allText(req), -1)
	if len(headers) == 0 {
		sb.WriteString(" No sources were provided.")
		return Response{Text: sb.String()}, nil
	}

	sb.WriteString("\n")
	for _, h := range headers {
		sb.WriteString(fmt.Sprintf("\n- %s [%s]", strings.TrimSpace(h[3]), h[1]))
	}
	sb.WriteString("\n\nConfigure a provider in settings to get a reasoned answer over these sources.")
	return Response{Text: sb.String()}, nil
}

func allText(req Request) string {
	var sb strings.Builder
	for _, m := range req.Messages {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
