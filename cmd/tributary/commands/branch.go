package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	branchServerURL   string
	branchJSON        bool
	branchDescription string
	branchDataOnly    bool
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Work with branches on a running server",
	Long: `Client commands against the HTTP API of a running Tributary server.
The server address is taken from --server or TRIBUTARY_SERVER_URL.`,
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all branches",
	Run:   runBranchList,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a branch off the default branch",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchCreate,
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a branch",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchDelete,
}

var branchRebaseCmd = &cobra.Command{
	Use:   "rebase NAME",
	Short: "Advance the branch point to the current instant",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchRebase,
}

var branchMergeCmd = &cobra.Command{
	Use:   "merge NAME",
	Short: "Merge a branch into the default branch",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchMerge,
}

func init() {
	branchCmd.PersistentFlags().StringVar(&branchServerURL, "server", "",
		"Base URL of the Tributary server (default http://localhost:8080, or TRIBUTARY_SERVER_URL)")
	branchCmd.PersistentFlags().BoolVar(&branchJSON, "json", false, "Output raw JSON")
	branchCreateCmd.Flags().StringVar(&branchDescription, "description", "", "Branch description")
	branchCreateCmd.Flags().BoolVar(&branchDataOnly, "data-only", false,
		"Create a data-only branch that tracks the default branch schema")

	branchCmd.AddCommand(branchListCmd)
	branchCmd.AddCommand(branchCreateCmd)
	branchCmd.AddCommand(branchDeleteCmd)
	branchCmd.AddCommand(branchRebaseCmd)
	branchCmd.AddCommand(branchMergeCmd)
}

// branchInfo mirrors the wire shape of a branch.
type branchInfo struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	BranchedFrom string `json:"branched_from"`
	IsDefault    bool   `json:"is_default"`
	IsDataOnly   bool   `json:"is_data_only"`
}

// apiError mirrors the error envelope of the HTTP API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func serverBaseURL() string {
	if branchServerURL != "" {
		return strings.TrimSuffix(branchServerURL, "/")
	}
	if env := os.Getenv("TRIBUTARY_SERVER_URL"); env != "" {
		return strings.TrimSuffix(env, "/")
	}
	return "http://localhost:8080"
}

// callAPI performs one request and returns the raw response body. Non-2xx
// responses are turned into errors carrying the server's message.
func callAPI(method, path string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, serverBaseURL()+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return raw, nil
}

func printJSON(raw []byte) {
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(indented.String())
}

func printBranchTable(branches []branchInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tBRANCHED FROM\tDEFAULT\tDATA ONLY\tDESCRIPTION")
	for _, b := range branches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n",
			b.Name, b.Status, b.BranchedFrom, b.IsDefault, b.IsDataOnly, b.Description)
	}
	w.Flush()
}

func runBranchList(cmd *cobra.Command, args []string) {
	raw, err := callAPI(http.MethodGet, "/api/v1/branches", nil)
	HandleError(err, "Failed to list branches")

	if branchJSON {
		printJSON(raw)
		return
	}

	var envelope struct {
		Branches []branchInfo `json:"branches"`
	}
	HandleError(json.Unmarshal(raw, &envelope), "Failed to decode response")
	printBranchTable(envelope.Branches)
}

func runBranchCreate(cmd *cobra.Command, args []string) {
	raw, err := callAPI(http.MethodPost, "/api/v1/branches", map[string]interface{}{
		"name":         args[0],
		"description":  branchDescription,
		"is_data_only": branchDataOnly,
	})
	HandleError(err, "Failed to create branch")

	if branchJSON {
		printJSON(raw)
		return
	}

	var b branchInfo
	HandleError(json.Unmarshal(raw, &b), "Failed to decode response")
	printBranchTable([]branchInfo{b})
}

func runBranchDelete(cmd *cobra.Command, args []string) {
	// Branch names are URL-safe by grammar and may legitimately contain
	// slashes, so they go into the path unescaped.
	_, err := callAPI(http.MethodDelete, "/api/v1/branches/"+args[0], nil)
	HandleError(err, "Failed to delete branch")
	fmt.Printf("Branch %s deleted\n", args[0])
}

func runBranchRebase(cmd *cobra.Command, args []string) {
	raw, err := callAPI(http.MethodPost, "/api/v1/branches/"+args[0]+"/rebase", nil)
	HandleError(err, "Failed to rebase branch")

	if branchJSON {
		printJSON(raw)
		return
	}

	var b branchInfo
	HandleError(json.Unmarshal(raw, &b), "Failed to decode response")
	fmt.Printf("Branch %s rebased to %s\n", b.Name, b.BranchedFrom)
}

func runBranchMerge(cmd *cobra.Command, args []string) {
	raw, err := callAPI(http.MethodPost, "/api/v1/branches/"+args[0]+"/merge", nil)
	HandleError(err, "Failed to merge branch")

	if branchJSON {
		printJSON(raw)
		return
	}

	var report struct {
		Branch        string `json:"branch"`
		Target        string `json:"target"`
		MergedAt      string `json:"merged_at"`
		EdgesReplayed int    `json:"edges_replayed"`
		EdgesSkipped  int    `json:"edges_skipped"`
	}
	HandleError(json.Unmarshal(raw, &report), "Failed to decode response")
	fmt.Printf("Merged %s into %s at %s (%d edges replayed, %d skipped)\n",
		report.Branch, report.Target, report.MergedAt, report.EdgesReplayed, report.EdgesSkipped)
}
