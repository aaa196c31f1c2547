package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/ekocloudsec/ctfctl/pkg/challenge"
	"github.com/ekocloudsec/ctfctl/pkg/creds"
	"github.com/ekocloudsec/ctfctl/pkg/state"
	"github.com/ekocloudsec/ctfctl/pkg/state/backend"
)

func loadManifest() (*challenge.Manifest, error) {
	return challenge.Load(viper.GetString("manifest"))
}

func loadCredentials() (*creds.Manager, error) {
	return creds.Load(viper.GetString("credentials"))
}

// createStateManager builds the state manager from the --backend and
// --backend-config flags.
func createStateManager() (state.Manager, error) {
	backendType := viper.GetString("backend")
	if backendType == "" {
		backendType = "local"
	}

	config, err := parseBackendConfig(viper.GetStringSlice("backend-config"))
	if err != nil {
		return nil, err
	}

	return state.NewManagerFromConfig(backend.Config{
		Type:   backendType,
		Config: config,
	})
}

func parseBackendConfig(pairs []string) (map[string]string, error) {
	config := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid backend config %q, expected key=value", pair)
		}
		config[key] = value
	}
	return config, nil
}

// selectChallenges resolves the positional args plus the --provider and
// --difficulty filters into a list of challenge names.
func selectChallenges(manifest *challenge.Manifest, args []string, provider, difficulty string) ([]string, error) {
	if len(args) > 0 {
		if provider != "" || difficulty != "" {
			return nil, fmt.Errorf("challenge names and filter flags are mutually exclusive")
		}
		for _, name := range args {
			if _, ok := manifest.Challenges[name]; !ok {
				return nil, fmt.Errorf("challenge %q not found in manifest", name)
			}
		}
		return args, nil
	}

	if provider == "" && difficulty == "" {
		// Empty selection means every challenge.
		return nil, nil
	}

	var names []string
	for name, c := range manifest.Challenges {
		if provider != "" && c.Provider != provider {
			continue
		}
		if difficulty != "" && c.Difficulty != difficulty {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no challenges match the given filters")
	}
	sort.Strings(names)
	return names, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so an
// interrupted run can record partial results before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// shouldConfirm reports whether a command needs an interactive
// confirmation before touching infrastructure.
func shouldConfirm(autoApprove bool) bool {
	return !autoApprove && isInteractive()
}

// isInteractive returns true if the CLI is running in an interactive
// terminal and not in a CI environment.
func isInteractive() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}

	ciEnvVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"TRAVIS",
		"JENKINS_URL",
		"BUILDKITE",
	}
	for _, env := range ciEnvVars {
		if os.Getenv(env) != "" {
			return false
		}
	}
	return true
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
