package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kudingc/nfs41client/internal/cliutil"
)

var opensCmd = &cobra.Command{
	Use:   "opens",
	Short: "Inspect a daemon's open-state table",
}

var opensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every open the daemon currently holds",
	RunE:  runOpensList,
}

func init() {
	opensCmd.AddCommand(opensListCmd)
}

// openSummary mirrors internal/debugapi.OpenSummary's JSON shape; a
// local copy keeps nfs41ctl from depending on the daemon's internal
// packages, the same boundary a real HTTP client/server pair has.
type openSummary struct {
	Path        string `json:"path"`
	ShareAccess uint32 `json:"share_access"`
	ShareDeny   uint32 `json:"share_deny"`
	CloseAction bool   `json:"close_action_pending"`
	RefCount    int32  `json:"ref_count"`
}

type openSummaryList []openSummary

func (l openSummaryList) Headers() []string {
	return []string{"PATH", "SHARE_ACCESS", "SHARE_DENY", "CLOSE_PENDING", "REFCOUNT"}
}

func (l openSummaryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		rows = append(rows, []string{
			s.Path,
			strconv.FormatUint(uint64(s.ShareAccess), 10),
			strconv.FormatUint(uint64(s.ShareDeny), 10),
			boolToYesNo(s.CloseAction),
			strconv.FormatInt(int64(s.RefCount), 10),
		})
	}
	return rows
}

func boolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runOpensList(cmd *cobra.Command, args []string) error {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(debugAddr + "/opens")
	if err != nil {
		return fmt.Errorf("fetch opens: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch opens: daemon returned %s", resp.Status)
	}

	var summaries openSummaryList
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return fmt.Errorf("fetch opens: decode response: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No opens held.")
		return nil
	}
	cliutil.PrintTable(cmd.OutOrStdout(), summaries)
	return nil
}
