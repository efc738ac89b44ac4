package main

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// --- get ---

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a setting from the running daemon",
	Long: `Read a setting from the running daemon.

Examples:
  prefsync get theme --default dark
  prefsync get retries --default 3 --number`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, _ := cmd.Flags().GetString("default")
		asNumber, _ := cmd.Flags().GetBool("number")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/settings/" + url.PathEscape(args[0]) + "?default=" + url.QueryEscape(def)
		if asNumber {
			path += "&type=number"
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Key   string `json:"key"`
			Value any    `json:"value"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%v\n", result.Value)
		return nil
	},
}

// --- set ---

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting through the running daemon",
	Long: `Write a setting through the running daemon.

Examples:
  prefsync set theme dark
  prefsync set retries 3 --number
  prefsync set draft "work in progress" --debounce`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asNumber, _ := cmd.Flags().GetBool("number")
		debounce, _ := cmd.Flags().GetBool("debounce")

		var value any = args[1]
		if asNumber {
			n, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("value %q is not a number", args[1])
			}
			value = n
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/settings"
		if debounce {
			path += "?debounce=true"
		}

		resp, err := client.put(cmd.Context(), path, map[string]any{args[0]: value})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		if debounce {
			printSuccess("Queued %s (write is debounced)", args[0])
		} else {
			printSuccess("Set %s", args[0])
		}
		return nil
	},
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream normalized change events",
	Long:  "Stream normalized change events from the running daemon.\nEach event is a JSON object with changes and the originating namespace.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.stream(cmd.Context(), "/events")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		printStep("Watching for changes (Ctrl-C to stop)")

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				fmt.Fprintln(os.Stdout, data)
			}
		}
		return scanner.Err()
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/health")
		if err != nil {
			printError("server not running")
			return nil
		}
		resp.Body.Close()
		printStatus("Server", "running at %s", client.baseURL)

		backend, err := fetchBackend(cmd, client)
		if err != nil {
			printWarning("backend unavailable: %v", err)
			return nil
		}
		printStatus("Backend", "%s", backend)
		return nil
	},
}

// --- backend ---

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Print the resolved storage backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		backend, err := fetchBackend(cmd, client)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, backend)
		return nil
	},
}

func fetchBackend(cmd *cobra.Command, client *apiClient) (string, error) {
	resp, err := client.get(cmd.Context(), "/backend")
	if err != nil {
		return "", err
	}
	var result struct {
		Backend string `json:"backend"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	return result.Backend, nil
}

func init() {
	getCmd.Flags().String("default", "", "value to return when the key is unset")
	getCmd.Flags().Bool("number", false, "treat the default as a number")
	setCmd.Flags().Bool("number", false, "store the value as a number")
	setCmd.Flags().Bool("debounce", false, "coalesce with other pending writes")
}
