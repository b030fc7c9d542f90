package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"focusift/internal/catalog"
	"focusift/internal/config"
	"focusift/internal/ipc"
)

var (
	socketPath     string
	dbPath         string
	defaultMinutes = 25
)

var rootCmd = &cobra.Command{
	Use:   "focusift-cli",
	Short: "CLI tool to interact with the Focusift daemon",
	Long:  `A command-line interface to start and stop focus sessions, report distractions, rate techniques and read session history from the running Focusift daemon via its Unix socket.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if socketPath != "" && dbPath != "" {
			return
		}
		// Fall back to the daemon's own configuration.
		cfg, err := config.LoadConfig("")
		if err != nil {
			cfg = nil
		}
		if socketPath == "" {
			socketPath = ipc.SocketPath
			if cfg != nil && cfg.SocketPath != "" {
				socketPath = cfg.SocketPath
			}
		}
		if dbPath == "" {
			dbPath = "focusift.db"
			if cfg != nil && cfg.DatabasePath != "" {
				dbPath = cfg.DatabasePath
			}
		}
		if cfg != nil && cfg.Timer.DefaultMinutes > 0 {
			defaultMinutes = cfg.Timer.DefaultMinutes
		}
	},
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// --- Client Helper Function ---

// sendCommand returns the daemon's successful response and exits the
// process on any failure.
func sendCommand(name string, args interface{}) ipc.Response {
	cmd, err := ipc.NewCommand(name, args)
	if err != nil {
		fatalf("encoding command: %v", err)
	}
	resp, err := ipc.Call(socketPath, cmd)
	if err != nil {
		fatalf("%v\nIs the Focusift daemon running?", err)
	}
	if !resp.Success {
		fatalf("%s", resp.Message)
	}
	return resp
}

func printStatusResponse(resp ipc.Response) {
	if resp.Message != "" {
		fmt.Println("Success:", resp.Message)
	}
	var st ipc.StatusData
	if err := resp.DecodeData(&st); err != nil {
		fatalf("decoding status: %v", err)
	}
	fmt.Print(renderStatus(st))
}

// --- Command Definitions ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the Focusift daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		resp := sendCommand(ipc.CmdPing, nil)
		fmt.Println("Success:", resp.Message)
	},
}

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the focus timer",
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	Run: func(cmd *cobra.Command, args []string) {
		minutes, _ := cmd.Flags().GetString("minutes")
		if !cmd.Flags().Changed("minutes") {
			minutes = fmt.Sprint(defaultMinutes)
		}
		printStatusResponse(sendCommand(ipc.CmdStartSession, ipc.StartSessionArgs{Minutes: minutes}))
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current focus session",
	Run: func(cmd *cobra.Command, args []string) {
		printStatusResponse(sendCommand(ipc.CmdStopSession, nil))
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer state and the last suggestion",
	Run: func(cmd *cobra.Command, args []string) {
		printStatusResponse(sendCommand(ipc.CmdGetStatus, nil))
	},
}

var timerWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live countdown (q or Esc to quit)",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWatch(socketPath); err != nil {
			fatalf("%v", err)
		}
	},
}

var visibilityCmd = &cobra.Command{
	Use:       "visibility hidden|visible",
	Short:     "Report that the focus surface was hidden or became visible again",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"hidden", "visible"},
	Run: func(cmd *cobra.Command, args []string) {
		resp := sendCommand(ipc.CmdSetVisibility, ipc.SetVisibilityArgs{Hidden: args[0] == "hidden"})
		fmt.Println("Success:", resp.Message)
	},
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Show the foreground window and whether it hides the focus target",
	Run: func(cmd *cobra.Command, args []string) {
		var fd ipc.FocusData
		if err := sendCommand(ipc.CmdGetFocus, nil).DecodeData(&fd); err != nil {
			fatalf("Error decoding focus: %v", err)
		}
		state := "visible"
		if fd.Hidden {
			state = "hidden"
		}
		fmt.Printf("%s: %s (%s)\n", fd.App, fd.Title, state)
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback like|dislike <technique>",
	Short: "Rate a focus technique",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var liked bool
		switch args[0] {
		case "like":
			liked = true
		case "dislike":
			liked = false
		default:
			fatalf("first argument must be 'like' or 'dislike', got %q", args[0])
		}
		technique := strings.Join(args[1:], " ")

		resp := sendCommand(ipc.CmdRecordFeedback, ipc.RecordFeedbackArgs{Technique: technique, Liked: liked})
		var fb ipc.FeedbackData
		if err := resp.DecodeData(&fb); err != nil {
			fatalf("decoding feedback: %v", err)
		}
		fmt.Printf("Success: %s (likes %d, dislikes %d)\n", resp.Message, fb.Entry.Likes, fb.Entry.Dislikes)
	},
}

var techniquesCmd = &cobra.Command{
	Use:   "techniques",
	Short: "List focus techniques",
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		level, _ := cmd.Flags().GetString("level")

		resp := sendCommand(ipc.CmdListTechniques, ipc.ListTechniquesArgs{Category: category, Level: level})
		var ts []catalog.Technique
		if err := json.Unmarshal(resp.Data, &ts); err != nil {
			fatalf("decoding techniques: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCATEGORY\tLEVEL\tDESCRIPTION")
		for _, t := range ts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Category, t.Level, t.Description)
		}
		w.Flush()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Path to the daemon socket (default: loaded from config or "+ipc.SocketPath+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the Focusift database file (default: loaded from config or 'focusift.db')")

	// --- Timer Commands ---
	timerStartCmd.Flags().StringP("minutes", "m", "", "Session length in whole minutes (default from timer.default_minutes)")
	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerStopCmd)
	timerCmd.AddCommand(timerStatusCmd)
	timerCmd.AddCommand(timerWatchCmd)
	rootCmd.AddCommand(timerCmd)

	// --- Technique Commands ---
	techniquesCmd.Flags().StringP("category", "c", "", "Filter by category (short, long, general, distraction)")
	techniquesCmd.Flags().StringP("level", "l", "", "Filter by level (beginner, intermediate, advanced)")
	rootCmd.AddCommand(techniquesCmd)

	// --- Report Commands ---
	reportSessionsCmd.Flags().IntP("days", "d", 7, "Number of past days to include in the report")
	reportSessionsCmd.Flags().StringP("user", "u", "", "Only show sessions of this user (default: all users)")
	reportCmd.AddCommand(reportSessionsCmd)
	rootCmd.AddCommand(reportCmd)

	// --- Other Commands ---
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(visibilityCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(feedbackCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
