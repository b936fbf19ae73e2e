package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipsign/clipsign/internal/config"
	"github.com/clipsign/clipsign/internal/media"
)

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a video file for signing",
	Long: `Submit a video file for signing.

Examples:
  clipsign submit ./clip.mp4
  clipsign submit ./clip.mp4 --device-info '{"camera":"axis-q1615","firmware":"10.12"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		deviceInfo, _ := cmd.Flags().GetString("device-info")

		if deviceInfo != "" && !json.Valid([]byte(deviceInfo)) {
			return fmt.Errorf("--device-info must be valid JSON")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.submitFile(cmd.Context(), path, deviceInfo)
		if err != nil {
			return err
		}

		var result struct {
			VideoID     string `json:"video_id"`
			Status      string `json:"status"`
			ContentHash string `json:"content_hash"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued job %s", result.VideoID)
		printStatus("Status", "%s", result.Status)
		printStatus("SHA-256", "%s", result.ContentHash)
		return nil
	},
}

func init() {
	submitCmd.Flags().String("device-info", "", "device metadata as a JSON object")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent signing jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/videos?limit=%d", limit))
		if err != nil {
			return err
		}

		var videos []struct {
			VideoID      string `json:"video_id"`
			OriginalName string `json:"original_name"`
			Status       string `json:"status"`
			CreatedAt    string `json:"created_at"`
		}
		if err := decodeJSON(resp, &videos); err != nil {
			return err
		}

		if len(videos) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}

		for _, v := range videos {
			fmt.Printf("%s  %s  %-10s  %s\n",
				colorize(colorCyan, v.VideoID[:8]),
				v.CreatedAt,
				statusColor(v.Status),
				v.OriginalName,
			)
		}
		return nil
	},
}

func statusColor(status string) string {
	switch status {
	case "completed":
		return colorize(colorGreen, status)
	case "failed":
		return colorize(colorRed, status)
	default:
		return colorize(colorYellow, status)
	}
}

func init() {
	jobsCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a single signing job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/videos/"+args[0])
		if err != nil {
			return err
		}

		var job any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <id>",
	Short: "Download the signed artifact of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if output == "" {
			// Name the download after the server-side artifact.
			resp, err := client.get(cmd.Context(), "/videos/"+id)
			if err != nil {
				return err
			}
			var job struct {
				OutputName string `json:"output_name"`
			}
			if err := decodeJSON(resp, &job); err != nil {
				return err
			}
			output = job.OutputName
			if output == "" {
				return fmt.Errorf("job %s has no signed artifact yet", id)
			}
			output = filepath.Base(output)
		}

		if err := client.download(cmd.Context(), "/videos/"+id+"/artifact", output); err != nil {
			return err
		}

		printSuccess("Saved signed video to %s", output)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("output", "", "output file path (default: the artifact name)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if key == "media.formats" {
			exts := media.ParseFormats(value).Extensions()
			if len(exts) == 0 {
				return fmt.Errorf("no valid extensions in %q", value)
			}
			value = strings.Join(exts, ",")
		}

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
