package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "mediagrab",
		Short: "MediaGrab CLI - analyze, download and track media from URLs",
		Long:  `A command-line interface for the MediaGrab download service.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func postJSON(path string, payload any) (int, []byte) {
	data, _ := json.Marshal(payload)
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewBuffer(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func getJSON(path string, out any) {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
		os.Exit(1)
	}
	json.Unmarshal(body, out)
}

type formatOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type mediaMetadata struct {
	Title             string         `json:"title"`
	SourceURL         string         `json:"source_url"`
	DurationSeconds   int            `json:"duration_seconds"`
	IsPlaylist        bool           `json:"is_playlist"`
	PlaylistItemCount int            `json:"playlist_item_count"`
	Formats           []formatOption `json:"formats"`
}

func analyze(url string) mediaMetadata {
	status, body := postJSON("/api/v1/analyze", map[string]string{"url": url})
	if status != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
		os.Exit(1)
	}

	var metadata mediaMetadata
	json.Unmarshal(body, &metadata)
	return metadata
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [url]",
	Short: "Probe a URL and list the available formats",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		metadata := analyze(args[0])

		fmt.Printf("Title: %s\n", metadata.Title)
		if metadata.IsPlaylist {
			fmt.Printf("Playlist: %d items\n", metadata.PlaylistItemCount)
		} else if metadata.DurationSeconds > 0 {
			fmt.Printf("Duration: %ds\n", metadata.DurationSeconds)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FORMAT\tLABEL")
		for _, f := range metadata.Formats {
			fmt.Fprintf(w, "%s\t%s\n", f.ID, f.Label)
		}
		w.Flush()
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Analyze a URL and start a download job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		url := args[0]
		formatID, _ := cmd.Flags().GetString("format")
		outputDir, _ := cmd.Flags().GetString("output")
		follow, _ := cmd.Flags().GetBool("follow")

		metadata := analyze(url)
		if len(metadata.Formats) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no downloadable formats")
			os.Exit(1)
		}
		if formatID == "" {
			formatID = metadata.Formats[0].ID
		}

		payload := map[string]string{
			"url":       url,
			"format_id": formatID,
		}
		if outputDir != "" {
			payload["output_dir"] = outputDir
		}

		status, body := postJSON("/api/v1/jobs", payload)
		if status != http.StatusAccepted {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		fmt.Printf("Download started: %s (%s)\n", metadata.Title, formatID)
		if follow {
			followProgress()
		}
	},
}

// followProgress prints progress events until the job leaves the
// downloading state
func followProgress() {
	wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot follow progress: %v\n", err)
		return
	}
	defer conn.Close()

	events := make(chan string, 16)
	go func() {
		defer close(events)
		for {
			var event struct {
				Message  string  `json:"message"`
				Fraction float64 `json:"fraction"`
			}
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			events <- event.Message
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, open := <-events:
			if !open {
				return
			}
			fmt.Println(message)
		case <-ticker.C:
			var active struct {
				State string `json:"state"`
			}
			getJSON("/api/v1/jobs/active", &active)
			if active.State != "downloading" && active.State != "analyzing" {
				return
			}
		}
	}
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active download",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		postJSON("/api/v1/jobs/cancel", nil)
		fmt.Println("Cancel requested")
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active download",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		postJSON("/api/v1/jobs/pause", nil)
		fmt.Println("Pause requested")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [entry-id]",
	Short: "Restart a download from a history entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		follow, _ := cmd.Flags().GetBool("follow")

		status, body := postJSON("/api/v1/jobs/resume", map[string]string{"entry_id": args[0]})
		if status != http.StatusAccepted {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		fmt.Println("Resume started")
		if follow {
			followProgress()
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active job state",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		var active struct {
			State    string         `json:"state"`
			Metadata *mediaMetadata `json:"metadata"`
		}
		getJSON("/api/v1/jobs/active", &active)

		fmt.Printf("State: %s\n", active.State)
		if active.Metadata != nil {
			fmt.Printf("Title: %s\n", active.Metadata.Title)
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List download history, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		var entries []struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			FormatLabel string `json:"format_label"`
			Status      string `json:"status"`
			CreatedAt   string `json:"created_at"`
		}
		getJSON("/api/v1/history", &entries)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tFORMAT\tSTATUS\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.ID,
				truncate(e.Title, 40),
				e.FormatLabel,
				e.Status,
				e.CreatedAt)
		}
		w.Flush()
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear download history",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/history", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("History cleared")
	},
}

func init() {
	downloadCmd.Flags().StringP("format", "f", "", "Format id from analyze (default: best)")
	downloadCmd.Flags().StringP("output", "o", "", "Output directory")
	downloadCmd.Flags().Bool("follow", false, "Stream progress until the job terminates")
	resumeCmd.Flags().Bool("follow", false, "Stream progress until the job terminates")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
