package notify

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ammario/prefixsuffix"
	"github.com/slack-go/slack"
	"golang.org/x/exp/maps"

	"github.com/kren/jiraslackpm"
)

// maxSectionText stays under Slack's 3000 character limit for section text.
const maxSectionText = 2900

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	saver := prefixsuffix.Saver{N: n}
	saver.Write([]byte(s))
	return string(saver.Bytes())
}

// SummaryText is the one-line form of sum used as notification fallback.
func SummaryText(sum *jiraslackpm.Summary) string {
	return fmt.Sprintf("Jira load %s: %d issues inserted for %d users, %d errors",
		sum.RunID, sum.IssuesInserted, sum.UsersProcessed, len(sum.Errors))
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

// SummaryBlocks renders sum as a Block Kit message.
func SummaryBlocks(sum *jiraslackpm.Summary) []slack.Block {
	took := sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Jira load finished", false, false)),
		slack.NewContextBlock("",
			markdown(fmt.Sprintf("run `%s` · started %s · took %s",
				sum.RunID, sum.StartedAt.Format("2006-01-02 15:04 MST"), took)),
		),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			markdown(fmt.Sprintf("*Users fetched*\n%d", sum.UsersFetched)),
			markdown(fmt.Sprintf("*Users processed*\n%d (skipped %d)", sum.UsersProcessed, sum.UsersSkipped)),
			markdown(fmt.Sprintf("*Issues inserted*\n%d", sum.IssuesInserted)),
			markdown(fmt.Sprintf("*Issues outside window*\n%d", sum.IssuesFiltered)),
		}, nil),
	}
	if len(sum.Errors) == 0 {
		return blocks
	}

	byStage := sum.ErrorsByStage()
	stages := maps.Keys(byStage)
	slices.Sort(stages)
	var counts []string
	for _, stage := range stages {
		counts = append(counts, fmt.Sprintf("%s: %d", stage, byStage[stage]))
	}

	var details strings.Builder
	for _, e := range sum.Errors {
		fmt.Fprintf(&details, "• %s\n", e.Error())
	}
	blocks = append(blocks,
		slack.NewDividerBlock(),
		slack.NewSectionBlock(markdown(fmt.Sprintf("*%d errors* (%s)", len(sum.Errors), strings.Join(counts, ", "))), nil, nil),
		slack.NewSectionBlock(markdown("```"+truncate(details.String(), maxSectionText)+"```"), nil, nil),
	)
	return blocks
}

// PostSummary posts sum to channel.
func (s *Slack) PostSummary(ctx context.Context, channel string, sum *jiraslackpm.Summary) error {
	_, err := s.PostBlocks(ctx, channel, SummaryText(sum), SummaryBlocks(sum)...)
	return err
}
