package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file and fills the rest with defaults", func() {
			writeConfig(`version = 0

[storage]
driver = "postgres"
postgres_dsn = "postgres://localhost/threads"

[derivation]
trigger_every = 25

[scheduler]
idle_interval = "5m"
`)

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("postgres"))
			Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://localhost/threads"))
			Expect(cfg.Derivation.TriggerEvery).To(Equal(uint(25)))
			Expect(cfg.Scheduler.IdleInterval).To(Equal(5 * time.Minute))

			defaults := config.NewDefaultConfig()
			Expect(cfg.Derivation.SummaryThreshold).To(Equal(defaults.Derivation.SummaryThreshold))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
			Expect(cfg.Embedding.Dimensions).To(Equal(defaults.Embedding.Dimensions))
			Expect(cfg.Scheduler.CalendarInterval).To(Equal(defaults.Scheduler.CalendarInterval))
		})

		It("returns an error for invalid TOML", func() {
			writeConfig("not valid [[[ toml")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
		})

		It("rejects an unsupported version", func() {
			writeConfig("version = 7\n")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
		})
	})

	Describe("SaveConfig", func() {
		It("writes a file that loads back identically", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = "memory"
			cfg.LLM.Timeout = 45 * time.Second
			cfg.Usage.CostPerToken = 0.002
			Expect(c.SaveConfig(cfg)).To(Succeed())

			info, err := os.Stat(filepath.Join(tmpDir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("rejects a nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(HaveOccurred())
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("round-trips typed keys",
			func(key, value string) {
				Expect(c.SetConfigValue(key, value)).To(Succeed())

				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(value))
			},
			Entry("string", "vector_store.provider", "qdrant"),
			Entry("uint", "derivation.trigger_every", "3"),
			Entry("duration", "scheduler.reminder_interval", "1m0s"),
			Entry("float", "usage.cost_per_message", "0.25"),
			Entry("secret", "notify.slack_token", "xoxb-1"),
		)

		It("rejects malformed numbers and durations", func() {
			Expect(c.SetConfigValue("derivation.workers", "many")).To(MatchError(ContainSubstring("derivation.workers")))
			Expect(c.SetConfigValue("llm.timeout", "soon")).To(MatchError(ContainSubstring("llm.timeout")))
			Expect(c.SetConfigValue("usage.cost_per_token", "free")).To(HaveOccurred())
		})

		It("rejects unknown keys", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))

			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("returns defaults for keys never set", func() {
			got, err := c.GetConfigValue("storage.driver")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("sqlite"))
		})
	})

	Describe("ValidConfigKeys", func() {
		It("lists every key exactly once, storage first", func() {
			keys := config.ValidConfigKeys()
			Expect(keys[0]).To(Equal("storage.driver"))
			Expect(keys).To(ContainElements("derivation.trigger_every", "eventstream.brokers", "transcriber.ws_url"))

			seen := map[string]bool{}
			for _, k := range keys {
				Expect(seen[k]).To(BeFalse(), k)
				seen[k] = true
				Expect(config.IsValidConfigKey(k)).To(BeTrue())
			}
		})

		It("rejects keys that do not exist", func() {
			Expect(config.IsValidConfigKey("storage")).To(BeFalse())
			Expect(config.IsValidConfigKey("")).To(BeFalse())
		})
	})
})

var _ = Describe("PresetConfig", func() {
	It("switches embedding and llm providers for openai", func() {
		cfg, err := config.PresetConfig("OpenAI")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.Provider).To(Equal("openai"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
		Expect(cfg.LLM.Provider).To(Equal("openai"))
		Expect(cfg.Storage.Driver).To(Equal("sqlite"))
	})

	It("uses the defaults for ollama", func() {
		cfg, err := config.PresetConfig("ollama")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("mystery")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
		Expect(config.ValidPresetNames()).To(ConsistOf("openai", "ollama"))
	})
})

var _ = Describe("NewDefaultConfig", func() {
	It("carries the derivation and scheduler defaults", func() {
		cfg := config.NewDefaultConfig()
		Expect(cfg.Derivation.TriggerEvery).To(Equal(uint(10)))
		Expect(cfg.Derivation.ToolIterations).To(Equal(uint(4)))
		Expect(cfg.Scheduler.CalendarInterval).To(Equal(30 * time.Minute))
		Expect(cfg.Compression.Algorithm).To(Equal("gzip"))
		Expect(cfg.EventStream.Provider).To(Equal("nop"))
		Expect(cfg.Notify.Provider).To(Equal("log"))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(v.GetString("storage.driver")).To(Equal(defaults.Storage.Driver))
		Expect(v.GetString("api.listen")).To(Equal(defaults.API.Listen))
		Expect(v.GetUint("derivation.trigger_every")).To(Equal(defaults.Derivation.TriggerEvery))
		Expect(v.GetDuration("scheduler.idle_interval")).To(Equal(defaults.Scheduler.IdleInterval))
	})

	It("reads config file values over defaults", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[llm]\nmodel = \"mistral\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("llm.model")).To(Equal("mistral"))
		Expect(v.GetString("llm.provider")).To(Equal("ollama"))
	})

	It("env vars with the THREADS_ prefix take precedence over the file", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[storage]\ndriver = \"postgres\"\n"), 0o600)).To(Succeed())
		GinkgoT().Setenv("THREADS_STORAGE_DRIVER", "memory")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("storage.driver")).To(Equal("memory"))
	})

	It("decodes the merged state into a Config", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[derivation]\nsummary_threshold = 50\n"), 0o600)).To(Succeed())
		GinkgoT().Setenv("THREADS_SCHEDULER_CALENDAR_INTERVAL", "2m")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Derivation.SummaryThreshold).To(Equal(uint(50)))
		Expect(cfg.Scheduler.CalendarInterval).To(Equal(2 * time.Minute))
		Expect(cfg.Derivation.TriggerEvery).To(Equal(uint(10)))
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &listen)
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagAPIListen})
		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":5555\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &listen)

		config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagAPIListen})
		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.FlagSet{}, []string{"nonexistent"})
		Expect(v.GetString("api.listen")).To(Equal(config.NewDefaultConfig().API.Listen))
	})

	It("pulls name, shorthand, default and description from the FlagSet", func() {
		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &target)

		f := cmd.Flags().Lookup("api-target")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("a"))
		Expect(f.Usage).To(Equal("threads API server URL"))
		Expect(f.DefValue).To(Equal(config.NewDefaultConfig().Client.APITarget))
	})

	It("registers uint and duration flags with their defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		var (
			every   uint
			timeout time.Duration
		)
		config.AddUintFlag(cmd, config.ServeFlags, config.FlagTriggerEvery, &every)
		config.AddDurationFlag(cmd, config.ServeFlags, config.FlagLLMTimeout, &timeout)

		Expect(cmd.Flags().Lookup("trigger-every").DefValue).To(Equal("10"))
		Expect(cmd.Flags().Lookup("llm-timeout").DefValue).To(Equal("30s"))
	})
})
