package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/elective-match-api/internal/models"
	"github.com/noah-isme/elective-match-api/internal/service"
	"github.com/noah-isme/elective-match-api/pkg/config"
)

// ErrMismatch is returned by compare when any request produced different results.
var ErrMismatch = errors.New("engines disagree")

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Operate the stable match engine from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(newSolveCmd(), newCompareCmd(), newTokenCmd())
	return root
}

func newSolveCmd() *cobra.Command {
	var (
		file     string
		capacity int
		fallback bool
		seed     int64
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a match request file (json or yaml) and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := loadRequest(file)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("capacity") {
				req.CapacityPerCourse = capacity
			}

			var matcher service.Matcher = service.NewStableMatchingService(nil, nil)
			if fallback {
				var rng *rand.Rand
				if cmd.Flags().Changed("seed") {
					rng = rand.New(rand.NewSource(seed))
				}
				matcher = service.NewRandomMatchingService(rng, nil)
			}

			result := matcher.Solve(cmd.Context(), req)
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Succeeded() {
				return fmt.Errorf("match failed: %s", result.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "match request file (.json, .yaml or .yml)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "override capacity_per_course")
	cmd.Flags().BoolVar(&fallback, "fallback", false, "use the random fallback matcher")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for the fallback matcher")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newCompareCmd() *cobra.Command {
	var (
		remote  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "compare [request files...]",
		Short: "Run each request locally and against a remote engine and report differences",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := service.NewStableMatchingService(nil, nil)
			client := service.NewHTTPEngineMatcher(remote, &http.Client{Timeout: timeout})
			return compareFiles(cmd.Context(), cmd.OutOrStdout(), local, client, args)
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "http://localhost:8081", "base URL of the remote engine")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "HTTP timeout per request")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret string
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				secret = cfg.JWT.Secret
			}
			token, err := service.NewTokenService(secret).Issue(userID, models.UserRole(strings.ToUpper(role)), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (defaults to JWT_SECRET)")
	cmd.Flags().StringVar(&userID, "user", "matchctl", "subject of the token")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func loadRequest(path string) (models.MatchRequest, error) {
	var req models.MatchRequest
	raw, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &req)
	default:
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return req, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return req, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var resultComparison = cmp.Options{
	cmpopts.IgnoreFields(models.MatchResult{}, "RunID", "Message", "ExecutionTimeMs"),
	cmpopts.SortSlices(func(a, b models.Assignment) bool { return a.StudentID < b.StudentID }),
	cmpopts.SortSlices(func(a, b string) bool { return a < b }),
	cmpopts.EquateEmpty(),
}

func compareFiles(ctx context.Context, out io.Writer, local service.Matcher, remote service.EngineMatcher, files []string) error {
	mismatches := 0
	for _, file := range files {
		req, err := loadRequest(file)
		if err != nil {
			return err
		}

		start := time.Now()
		want := local.Solve(ctx, req)
		localDuration := time.Since(start)

		start = time.Now()
		got, err := remote.Match(ctx, req)
		remoteDuration := time.Since(start)
		if err != nil {
			mismatches++
			fmt.Fprintf(out, "[FAIL] %s remote error: %v\n", file, err)
			continue
		}

		if diff := cmp.Diff(want, got, resultComparison); diff != "" {
			mismatches++
			fmt.Fprintf(out, "[DIFF] %s (-local +remote):\n%s", file, diff)
			continue
		}
		fmt.Fprintf(out, "[OK]   %s local=%s remote=%s assignments=%d\n", file, localDuration.Round(time.Millisecond), remoteDuration.Round(time.Millisecond), len(want.Assignments))
	}

	fmt.Fprintf(out, "%d/%d requests matched\n", len(files)-mismatches, len(files))
	if mismatches > 0 {
		return fmt.Errorf("%w: %d of %d requests", ErrMismatch, mismatches, len(files))
	}
	return nil
}
