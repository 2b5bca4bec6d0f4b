// Package config loads JobQuest configuration: yaml file merged over
// defaults, with environment variables taking precedence for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/mlopez/jobquest/llm"
	"gopkg.in/yaml.v3"
)

// ProviderConfig holds credentials and model selection for a single-model
// provider.
type ProviderConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// GeminiConfig additionally carries the quality-ordered model ladder, since
// Gemini models have independent quotas.
type GeminiConfig struct {
	APIKey string   `yaml:"api_key,omitempty"`
	Model  string   `yaml:"model,omitempty"`  // primary
	Models []string `yaml:"models,omitempty"` // quality-ordered try list
}

// ApplicantConfig is injected into generated form-data artifacts.
type ApplicantConfig struct {
	Name     string `yaml:"name,omitempty"`
	Email    string `yaml:"email,omitempty"`
	Phone    string `yaml:"phone,omitempty"`
	LinkedIn string `yaml:"linkedin,omitempty"`
	Website  string `yaml:"website,omitempty"`
	Location string `yaml:"location,omitempty"`
}

// NotionConfig identifies the workspace used as resume source and tracking
// store. All IDs are optional; steps degrade gracefully without them.
type NotionConfig struct {
	Token              string `yaml:"token,omitempty"`
	MasterResumePageID string `yaml:"master_resume_page_id,omitempty"`
	ApplicationsDBID   string `yaml:"applications_db_id,omitempty"`
	QATemplatesDBID    string `yaml:"qa_templates_db_id,omitempty"`
	SkillsDBID         string `yaml:"skills_db_id,omitempty"`
}

// Config is the full application configuration.
type Config struct {
	// Provider is the primary LLM provider; the fallback chain starts there.
	Provider string `yaml:"provider,omitempty"`

	OutputDir string `yaml:"output_dir,omitempty"`
	StatsDB   string `yaml:"stats_db,omitempty"`
	CacheDir  string `yaml:"cache_dir,omitempty"`

	// ResumeVariant is recorded on tracking entries (A/B testing).
	ResumeVariant string `yaml:"resume_variant,omitempty"`
	// RoleVariant drives Q&A framing: "growth_pm" or "generalist".
	RoleVariant string `yaml:"role_variant,omitempty"`

	// LatexCommand is the binary used to compile the tailored resume.
	LatexCommand string `yaml:"latex_command,omitempty"`

	Gemini     GeminiConfig   `yaml:"gemini,omitempty"`
	Groq       ProviderConfig `yaml:"groq,omitempty"`
	SambaNova  ProviderConfig `yaml:"sambanova,omitempty"`
	DeepSeek   ProviderConfig `yaml:"deepseek,omitempty"`
	OpenRouter ProviderConfig `yaml:"openrouter,omitempty"`
	Anthropic  ProviderConfig `yaml:"anthropic,omitempty"`

	Applicant ApplicantConfig `yaml:"applicant,omitempty"`
	Notion    NotionConfig    `yaml:"notion,omitempty"`
}

// DefaultPath returns the default config file path. Can be overridden via
// JOBQUEST_CONFIG_PATH.
func DefaultPath() string {
	if envPath := os.Getenv("JOBQUEST_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.jobquest/config.yaml"
	}
	return filepath.Join(homeDir, ".jobquest", "config.yaml")
}

func defaults() Config {
	return Config{
		Provider:      llm.ProviderGemini,
		OutputDir:     "output",
		StatsDB:       "~/.jobquest/usage.db",
		CacheDir:      "~/.jobquest/cache",
		ResumeVariant: "Tech-First",
		RoleVariant:   "growth_pm",
		LatexCommand:  "pdflatex",
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
			Models: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
				"gemini-2.5-flash-lite",
			},
		},
		Groq:       ProviderConfig{Model: "llama-3.3-70b-versatile"},
		SambaNova:  ProviderConfig{Model: "Meta-Llama-3.3-70B-Instruct"},
		DeepSeek:   ProviderConfig{Model: "deepseek-chat"},
		OpenRouter: ProviderConfig{Model: "deepseek/deepseek-chat-v3-0324:free"},
		Anthropic:  ProviderConfig{Model: "claude-sonnet-4-5"},
	}
}

// Load reads configuration from path (a missing file is fine: defaults plus
// environment), merges it over defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		raw, err := os.ReadFile(expandedPath) //#nosec G304 -- intentional config read
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	applyEnv(&cfg)

	cfg.StatsDB = expandPath(cfg.StatsDB)
	cfg.CacheDir = expandPath(cfg.CacheDir)
	cfg.OutputDir = expandPath(cfg.OutputDir)

	return &cfg, nil
}

// applyEnv lets environment variables override file values. Credentials
// usually live only in the environment.
func applyEnv(cfg *Config) {
	setIfEnv(&cfg.Provider, "LLM_PROVIDER")
	setIfEnv(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setIfEnv(&cfg.Groq.APIKey, "GROQ_API_KEY")
	setIfEnv(&cfg.SambaNova.APIKey, "SAMBANOVA_API_KEY")
	setIfEnv(&cfg.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	setIfEnv(&cfg.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setIfEnv(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setIfEnv(&cfg.Notion.Token, "NOTION_TOKEN")
	setIfEnv(&cfg.Notion.MasterResumePageID, "NOTION_MASTER_RESUME_ID")
	setIfEnv(&cfg.Notion.ApplicationsDBID, "NOTION_APPLICATIONS_DB_ID")
	setIfEnv(&cfg.Notion.QATemplatesDBID, "NOTION_QA_TEMPLATES_DB_ID")
	setIfEnv(&cfg.Notion.SkillsDBID, "NOTION_SKILLS_KEYWORDS_DB_ID")
	setIfEnv(&cfg.ResumeVariant, "RESUME_VARIANT")
	setIfEnv(&cfg.RoleVariant, "ROLE_VARIANT")
}

func setIfEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
