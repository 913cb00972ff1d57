package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/arcade/internal/arcade"
	"github.com/verte-zerg/arcade/internal/httpapi"
	"github.com/verte-zerg/arcade/internal/ledger"
	"github.com/verte-zerg/arcade/internal/model"
	"github.com/verte-zerg/arcade/internal/progress"
	"github.com/verte-zerg/arcade/internal/progressui"
	"github.com/verte-zerg/arcade/internal/watch"
)

var (
	setupLevel  string
	setupAge    string
	setupReason string

	generateSkill   string
	generateTeacher string

	activitySkill string

	homeworkNotes     string
	homeworkNotesFile string
	homeworkExercises []string
	homeworkStarting  []string
	homeworkKeeping   []string

	listLevel string
	listSkill string

	progressPlain bool

	watchUsers []string
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Save level, age, and learning reason; resets the course",
		Args:  cobra.NoArgs,
		RunE:  runSetupCmd,
	}
	cmd.Flags().StringVar(&setupLevel, "level", "", "CEFR level (A1, A2, B1, B2, C1, C2)")
	cmd.Flags().StringVar(&setupAge, "age", "", "age in years")
	cmd.Flags().StringVar(&setupReason, "reason", "", "why you are learning")
	return cmd
}

func runSetupCmd(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		profile, err := a.ledger.Profiles.SaveSetup(ctx, a.userID, ledger.SetupInput{
			Level:  setupLevel,
			Age:    setupAge,
			Reason: setupReason,
		})
		if err != nil {
			return err
		}
		if err := a.session.Push(ctx, a.userID); err != nil {
			logErrln(arcade.UserMessage(err))
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Profile saved: level %s, age %d, reason %q (%s)\n",
			profile.Level, profile.Age, profile.Reason, profile.ReasonBucket())
		return nil
	})
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the saved profile and course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{start: true}, func(ctx context.Context, a *app) error {
				profile, err := a.ledger.Profiles.Load(ctx, a.userID)
				if err != nil {
					return err
				}
				course, err := a.ledger.Courses.Load(ctx, a.userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "User:   %s\nLevel:  %s\nAge:    %d\nReason: %s (%s)\nDaily lessons left: %d\n\n",
					a.userID, profile.Level, profile.Age, profile.Reason, profile.ReasonBucket(), profile.DailyQuota)
				rows := make([][]string, 0, len(course.Skills))
				for _, sp := range course.Skills {
					done := ""
					if sp.Done() {
						done = "✓"
					}
					rows = append(rows, []string{string(sp.Skill), fmt.Sprintf("%d/%d", sp.Completed, sp.Required), done})
				}
				return progress.RenderTable(out, []string{"Skill", "Completed", "Done"}, rows, "No course yet.")
			})
		},
	}
}

func newQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show remaining lessons for today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
				remaining, err := a.session.RefreshQuota(ctx, a.userID)
				var cached *arcade.CachedQuotaError
				if err != nil && !errors.As(err, &cached) {
					return err
				}
				if cached != nil {
					logErrln(arcade.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Lessons left today: %d/%d\n", remaining, ledger.DailyQuota)
				return nil
			})
		},
	}
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new lesson (uses one daily call)",
		Args:  cobra.NoArgs,
		RunE:  runGenerateCmd,
	}
	cmd.Flags().StringVar(&generateSkill, "skill", string(model.SkillSpeaking), "skill focus")
	cmd.Flags().StringVar(&generateTeacher, "teacher", ledger.DefaultTeacher, "teacher: "+strings.Join(ledger.Teachers, ", "))
	return cmd
}

func runGenerateCmd(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, openOptions{start: true}, func(ctx context.Context, a *app) error {
		lesson, err := a.session.GenerateLesson(ctx, a.userID, arcade.LessonRequest{
			Skill:   generateSkill,
			Teacher: generateTeacher,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		entry := lesson.Entry
		fmt.Fprintf(out, "%s lesson with %s (%s)", entry.SkillFocus, entry.Teacher, entry.StudentLevel)
		if entry.ModuleLesson > 0 {
			profile, err := a.ledger.Profiles.Load(ctx, a.userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, ", module %d: %s", entry.ModuleLesson, ledger.SpeakingTopic(profile.ReasonBucket(), entry.ModuleLesson))
		}
		plan := progress.Wrap(strings.TrimSpace(entry.ClassPlan), progress.TerminalWidth(out))
		fmt.Fprintf(out, "\nLessons left today: %d\n\n%s\n", lesson.Remaining, plan)
		return nil
	})
}

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <answer>",
		Short: "Submit an answer for the latest lesson",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
				graded, err := a.session.SubmitAnswer(ctx, a.userID, strings.Join(args, " "))
				if graded.Feedback != "" {
					fmt.Fprintln(cmd.OutOrStdout(), graded.Feedback)
				}
				if err != nil {
					return err
				}
				printGraded(cmd.OutOrStdout(), graded)
				return nil
			})
		},
	}
}

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "activity <" + arcade.ActionFlashcards + "|" + arcade.ActionAudio + ">",
		Short:     "Complete the latest lesson with a local activity",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{arcade.ActionFlashcards, arcade.ActionAudio},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
				graded, err := a.session.CompleteActivity(ctx, a.userID, args[0], activitySkill)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), graded.Feedback)
				printGraded(cmd.OutOrStdout(), graded)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&activitySkill, "skill", "", "skill focus of the lesson")
	return cmd
}

func printGraded(w io.Writer, g arcade.Graded) {
	if g.Badge != nil {
		fmt.Fprintf(w, "🏆 Badge earned: %s\n", g.Badge.Name)
	}
	if sp, ok := g.Course.Skill(g.Lesson.SkillFocus); ok {
		fmt.Fprintf(w, "%s: %d/%d lessons\n", sp.Skill, sp.Completed, sp.Required)
	}
}

func newHomeworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "homework",
		Short: "Save homework notes for the latest lesson",
		Args:  cobra.NoArgs,
		RunE:  runHomeworkCmd,
	}
	cmd.Flags().StringVar(&homeworkNotes, "notes", "", "homework notes")
	cmd.Flags().StringVar(&homeworkNotesFile, "notes-file", "", "read notes from a file ('-' for stdin)")
	cmd.Flags().StringArrayVar(&homeworkExercises, "exercise", nil, "exercise answer as N=text; repeat N for list answers")
	cmd.Flags().StringArrayVar(&homeworkStarting, "starting", nil, "quick check phrase for the starting zone")
	cmd.Flags().StringArrayVar(&homeworkKeeping, "keeping", nil, "quick check phrase for the keeping zone")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved homework, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{start: true}, func(ctx context.Context, a *app) error {
				seq, err := a.ledger.Homework.List(ctx, a.userID, ledger.Filter{Level: listLevel, Skill: listSkill})
				if err != nil {
					return err
				}
				return progress.RenderTable(cmd.OutOrStdout(), progress.HomeworkHeaders, progress.HomeworkRows(seq), "No homework saved.")
			})
		},
	}
	addListFlags(list)
	cmd.AddCommand(list)
	return cmd
}

func runHomeworkCmd(cmd *cobra.Command, _ []string) error {
	notes := homeworkNotes
	if homeworkNotesFile != "" {
		var (
			raw []byte
			err error
		)
		if homeworkNotesFile == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(homeworkNotesFile)
		}
		if err != nil {
			return fmt.Errorf("failed to read notes: %w", err)
		}
		notes = string(raw)
	}
	exercises, err := parseExercises(homeworkExercises)
	if err != nil {
		return err
	}
	return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
		saved, err := a.session.SaveHomework(ctx, a.userID, arcade.HomeworkInput{
			Notes:     notes,
			DragDrop:  model.DragDropSelections{Starting: homeworkStarting, Keeping: homeworkKeeping},
			Exercises: exercises,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Homework saved for %s lesson.\n", saved.Entry.SkillFocus)
		if saved.Badge != nil {
			fmt.Fprintf(out, "🏆 Badge earned: %s\n", saved.Badge.Name)
		}
		return nil
	})
}

// parseExercises turns N=text pairs into answers. A repeated N becomes a list answer.
func parseExercises(pairs []string) (map[int]model.ExerciseAnswer, error) {
	out := map[int]model.ExerciseAnswer{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --exercise %q (expected N=text)", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid --exercise index %q", key)
		}
		prev, seen := out[n]
		switch {
		case !seen:
			out[n] = model.ExerciseAnswer{Text: value}
		case prev.Items != nil:
			prev.Items = append(prev.Items, value)
			out[n] = prev
		default:
			out[n] = model.ExerciseAnswer{Items: []string{prev.Text, value}}
		}
	}
	return out, nil
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listLevel, "level", "", "filter by level (substring, any case)")
	cmd.Flags().StringVar(&listSkill, "skill", "", "filter by skill (substring, any case)")
}

func newLessonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "List archived lessons, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{start: true}, func(ctx context.Context, a *app) error {
				seq, err := a.ledger.Lessons.List(ctx, a.userID, ledger.Filter{Level: listLevel, Skill: listSkill})
				if err != nil {
					return err
				}
				return progress.RenderTable(cmd.OutOrStdout(), progress.LessonHeaders, progress.LessonRows(seq), "No lessons found.")
			})
		},
	}
	addListFlags(cmd)
	return cmd
}

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show progress; interactive on a terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{start: true}, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if !progressPlain && progress.IsTerminal(out) {
					m := progressui.NewModel(a.ledger, a.userID, ledger.Filter{})
					if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
						return fmt.Errorf("failed to run progress TUI: %w", err)
					}
					return nil
				}
				report, err := progress.BuildReport(ctx, a.ledger, a.userID)
				if err != nil {
					return err
				}
				return progress.Render(out, report, progress.IsTerminal(out))
			})
		},
	}
	cmd.Flags().BoolVar(&progressPlain, "plain", false, "print the report instead of the interactive view")
	return cmd
}

func newRoomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rooms [room]",
		Short: "Show which rooms are open",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms := model.Rooms
			if len(args) == 1 {
				rooms = []string{args[0]}
			}
			return withApp(cmd, openOptions{start: true}, func(ctx context.Context, a *app) error {
				course, err := a.ledger.Courses.Load(ctx, a.userID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(rooms))
				for _, room := range rooms {
					status := "open"
					reason := ledger.LockReason(course, a.mode(), room, a.gates())
					if !ledger.CanAccessRoom(course, a.mode(), room, a.gates()) {
						status = "locked"
					}
					rows = append(rows, []string{room, status, reason})
				}
				return progress.RenderTable(cmd.OutOrStdout(), []string{"Room", "Status", "Unlock"}, rows, "")
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the remote store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Replace local state with the remote copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
				if !a.syncer.Enabled() {
					return errors.New("remote sync is disabled (set [sync] backend in the config)")
				}
				replaced, err := a.session.Pull(ctx, a.userID)
				if err != nil {
					return err
				}
				if replaced {
					fmt.Fprintln(cmd.OutOrStdout(), "Local data replaced with the server copy.")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No server copy found; local data kept.")
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Write local state to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, openOptions{}, func(ctx context.Context, a *app) error {
				if !a.syncer.Enabled() {
					return errors.New("remote sync is disabled (set [sync] backend in the config)")
				}
				if err := a.session.Push(ctx, a.userID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Local data saved to the server.")
				return nil
			})
		},
	})
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local JSON API for a browser front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, openOptions{}, func(_ context.Context, a *app) error {
				if !cmd.Flags().Changed("addr") {
					addr = a.cfg.ServerAddr
				}
				srv := httpapi.New(a.session, httpapi.Config{
					Addr:           addr,
					AllowedOrigins: a.cfg.AllowedOrigins,
					Mode:           a.mode(),
					Gates:          a.gates(),
				}, a.log)
				logErrf("Serving on http://%s\n", addr)
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", httpapi.DefaultAddr, "listen address")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep local data in sync with the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, openOptions{}, func(_ context.Context, a *app) error {
				users := watchUsers
				if len(users) == 0 {
					users = []string{a.userID}
				}
				w := watch.New(a.session, a.store, watch.Config{PullEvery: a.cfg.PullEvery, Users: users}, a.log)
				if err := w.Start(); err != nil {
					return err
				}
				logErrf("Watching %s every %s (Ctrl+C to stop)\n", strings.Join(users, ", "), a.cfg.PullEvery)
				<-ctx.Done()
				w.Stop()
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&watchUsers, "watch-user", nil, "user to watch (repeatable; default --user)")
	return cmd
}
