package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/jobscope/pkg/pipeline"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"github.com/sw33tLie/jobscope/pkg/storage"
	"github.com/tidwall/gjson"
)

// settingKeys maps the names accepted on the command line to store keys.
var settingKeys = map[string]string{
	"score":   storage.KeyScoreSettings,
	"toggles": storage.KeyToggles,
	"llm":     storage.KeyLLMSettings,
}

// llmSettings is the stored LLM override. Empty fields fall back to the
// config file.
type llmSettings struct {
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

func parseLLMSettings(raw []byte) llmSettings {
	return llmSettings{
		APIKey: gjson.GetBytes(raw, "apiKey").String(),
		Model:  gjson.GetBytes(raw, "model").String(),
		Prompt: gjson.GetBytes(raw, "prompt").String(),
	}
}

func (l llmSettings) merge(raw []byte) llmSettings {
	for key, field := range map[string]*string{"apiKey": &l.APIKey, "model": &l.Model, "prompt": &l.Prompt} {
		if v := gjson.GetBytes(raw, key); v.Type == gjson.String {
			*field = v.String()
		}
	}
	return l
}

func (l llmSettings) masked() llmSettings {
	if n := len(l.APIKey); n > 8 {
		l.APIKey = l.APIKey[:4] + strings.Repeat("*", n-8) + l.APIKey[n-4:]
	} else if n > 0 {
		l.APIKey = strings.Repeat("*", n)
	}
	return l
}

// mergeSetting overlays update onto the stored value of name and returns
// the full value to store.
func mergeSetting(name string, stored, update []byte) ([]byte, error) {
	switch name {
	case "score":
		return json.Marshal(scoring.DefaultConfig().Merge(stored).Merge(update))
	case "toggles":
		return json.Marshal(pipeline.ParseToggles(stored).Merge(update))
	case "llm":
		return json.Marshal(parseLLMSettings(stored).merge(update))
	}
	return nil, fmt.Errorf("unknown setting %q (use score, toggles or llm)", name)
}

// settingsCmd represents the settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change scoring, loading and LLM settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings the next pass will use",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		read := func(key string) []byte {
			raw, _, err := a.settings.Get(ctx, key)
			if err != nil {
				fmt.Printf("Could not read %s: %v\n", key, err)
			}
			return raw
		}
		out := struct {
			Score   scoring.Config   `json:"score"`
			Toggles pipeline.Toggles `json:"toggles"`
			LLM     llmSettings      `json:"llm"`
		}{
			Score:   scoring.ParseConfig(read(storage.KeyScoreSettings)),
			Toggles: pipeline.ParseToggles(read(storage.KeyToggles)),
			LLM:     parseLLMSettings(read(storage.KeyLLMSettings)).masked(),
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <score|toggles|llm> <json>",
	Short: "Merge a JSON object into a setting",
	Example: `  jobscope settings set score '{"weights": {"hireRate": 6}, "budgetTarget": 2000}'
  jobscope settings set toggles '{"checkboxMemberSince": false}'
  jobscope settings set llm '{"model": "openai/gpt-4o-mini"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, update := args[0], []byte(args[1])
		key, ok := settingKeys[name]
		if !ok {
			return fmt.Errorf("unknown setting %q (use score, toggles or llm)", name)
		}
		if !gjson.ValidBytes(update) || !gjson.ParseBytes(update).IsObject() {
			return errors.New("the value must be a JSON object")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: true})
		if err != nil {
			return err
		}
		defer a.Close()

		stored, _, err := a.settings.Get(ctx, key)
		if err != nil {
			return err
		}
		merged, err := mergeSetting(name, stored, update)
		if err != nil {
			return err
		}
		if err := a.settings.Set(ctx, key, merged); err != nil {
			return err
		}
		fmt.Printf("Saved %s settings.\n", name)
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset <score|toggles|llm|all>",
	Short: "Drop stored settings so the defaults apply again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var keys []string
		if args[0] == "all" {
			for _, k := range settingKeys {
				keys = append(keys, k)
			}
		} else if k, ok := settingKeys[args[0]]; ok {
			keys = []string{k}
		} else {
			return fmt.Errorf("unknown setting %q", args[0])
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := openApp(cmd, appOptions{write: true})
		if err != nil {
			return err
		}
		defer a.Close()

		for _, k := range keys {
			if err := a.settings.Delete(ctx, k); err != nil {
				return err
			}
		}
		fmt.Printf("Reset %s.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}
