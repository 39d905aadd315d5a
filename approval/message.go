package approval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"f0oster/adsweep/artifacts"
	"f0oster/adsweep/storage"

	"github.com/slack-go/slack"
)

const (
	HeaderText    = "A scan of our LDAP directory has been completed."
	ReportTimeFmt = "01/02/2006, 15:04:05"

	BlockIDHeader    = "report_header"
	BlockIDArtifacts = "report_artifacts"
	BlockIDActions   = "report_actions"
	BlockIDContext   = "report_context"
	BlockIDStatus    = "report_status"
)

// BuildReport lays out the approval request: header, divider, artifact links,
// divider, the Deny/Approve buttons and a generation-time footer.
func BuildReport(r Report) ([]slack.Block, error) {
	rawKey, _ := artifacts.RawScanKey(r.Artifacts)
	value, err := json.Marshal(ButtonValue{TaskToken: r.TaskToken, ArtifactKey: rawKey})
	if err != nil {
		return nil, fmt.Errorf("encode button value: %w", err)
	}

	header := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, HeaderText, false, false), nil, nil)
	header.BlockID = BlockIDHeader

	links := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, artifactLinksText(r), false, false), nil, nil)
	links.BlockID = BlockIDArtifacts

	actions := slack.NewActionBlock(BlockIDActions,
		button(ActionDeny, string(value), slack.StyleDanger),
		button(ActionApprove, string(value), slack.StylePrimary),
	)

	footer := slack.NewContextBlock(BlockIDContext,
		slack.NewTextBlockObject(slack.MarkdownType, "Report Generated: "+r.GeneratedAt.Format(ReportTimeFmt), false, false),
	)

	return []slack.Block{
		header,
		slack.NewDividerBlock(),
		links,
		slack.NewDividerBlock(),
		actions,
		footer,
	}, nil
}

func button(actionID, value string, style slack.Style) *slack.ButtonBlockElement {
	b := slack.NewButtonBlockElement(actionID, value, slack.NewTextBlockObject(slack.PlainTextType, actionID, false, false))
	b.Style = style
	b.Confirm = slack.NewConfirmationBlockObject(
		slack.NewTextBlockObject(slack.PlainTextType, "Are you sure?", false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "Are you sure you want to take this action?", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, "Yes", false, false),
		slack.NewTextBlockObject(slack.PlainTextType, "No", false, false),
	)
	return b
}

func artifactLinksText(r Report) string {
	var sb strings.Builder
	sb.WriteString("Total counts of users with passwords that have not been changed in..")
	for _, key := range sortedKeys(r.Totals) {
		fmt.Fprintf(&sb, "\n\t greater than %s days: %d", key, r.Totals[key])
	}

	var human, machine strings.Builder
	for _, a := range r.Artifacts {
		link := fmt.Sprintf("\n <%s|%s> \n", a.URL, a.FileName)
		if a.RawScanResults {
			machine.WriteString(link)
		} else {
			human.WriteString(link)
		}
	}

	ttl := r.LinkTTL
	if ttl <= 0 {
		ttl = storage.DefaultPresignTTL
	}

	sb.WriteString("\n\n human readable details available here: ")
	sb.WriteString(human.String())
	sb.WriteString("\n\n machine readable details available here: ")
	sb.WriteString(machine.String())
	fmt.Fprintf(&sb, "\n *Note*: When this message is %s old these urls will no longer be functional\n\n", describeTTL(ttl))
	return sb.String()
}

func sortedKeys(totals map[string]int) []string {
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.Atoi(keys[i])
		nj, errJ := strconv.Atoi(keys[j])
		if errI == nil && errJ == nil {
			return ni > nj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func describeTTL(d time.Duration) string {
	if d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	if d%time.Minute == 0 {
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// SpliceStatus replaces the actions block with a status section and keeps every
// other block, the context footer included, in place.
func SpliceStatus(blocks []slack.Block, status string) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	replaced := false
	for _, b := range blocks {
		if b.BlockType() == slack.MBTAction {
			if !replaced {
				out = append(out, statusBlock(status))
				replaced = true
			}
			continue
		}
		out = append(out, b)
	}
	if !replaced {
		out = insertBeforeContext(out, statusBlock(status))
	}
	return out
}

func statusBlock(status string) slack.Block {
	s := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, status, false, false), nil, nil)
	s.BlockID = BlockIDStatus
	return s
}

func insertBeforeContext(blocks []slack.Block, b slack.Block) []slack.Block {
	if n := len(blocks); n > 0 && blocks[n-1].BlockType() == slack.MBTContext {
		out := append([]slack.Block{}, blocks[:n-1]...)
		return append(out, b, blocks[n-1])
	}
	return append(blocks, b)
}
