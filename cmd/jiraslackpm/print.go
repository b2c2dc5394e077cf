package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/kren/jiraslackpm"
)

type stageCount struct {
	Stage jiraslackpm.Stage
	Count int
}

func (sc stageCount) String() string {
	return fmt.Sprintf("%s: %d", sc.Stage, sc.Count)
}

// stageCounts orders the error counts of sum, most frequent first.
func stageCounts(sum *jiraslackpm.Summary) []stageCount {
	var counts []stageCount
	for stage, n := range sum.ErrorsByStage() {
		counts = append(counts, stageCount{stage, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Stage < counts[j].Stage
	})
	return counts
}

func printSummary(w io.Writer, sum *jiraslackpm.Summary) error {
	twr := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	fmt.Fprintf(twr, "Run:\t%s\n", sum.RunID)
	fmt.Fprintf(twr, "Took:\t%s\n", sum.FinishedAt.Sub(sum.StartedAt).Truncate(time.Millisecond))
	fmt.Fprintf(twr, "Users fetched:\t%d\n", sum.UsersFetched)
	fmt.Fprintf(twr, "Users inserted:\t%d\n", sum.UsersInserted)
	fmt.Fprintf(twr, "Users processed:\t%d\tskipped %d\n", sum.UsersProcessed, sum.UsersSkipped)
	fmt.Fprintf(twr, "Issues fetched:\t%d\n", sum.IssuesFetched)
	fmt.Fprintf(twr, "Issues inserted:\t%d\trejected %d\n", sum.IssuesInserted, sum.IssuesRejected)
	fmt.Fprintf(twr, "Issues outside window:\t%d\n", sum.IssuesFiltered)
	fmt.Fprintf(twr, "Pages truncated:\t%d\n", sum.PagesTruncated)
	fmt.Fprintf(twr, "Errors:\t%d\t%v\n", len(sum.Errors), stageCounts(sum))
	for _, e := range sum.Errors {
		fmt.Fprintf(twr, "\t%s\n", e)
	}
	return twr.Flush()
}
