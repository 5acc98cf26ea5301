package configcmder

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatserve/pkg/config"
)

var _ = Describe("Config Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatserve-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	Describe("init", func() {
		It("writes the defaults as TOML", func() {
			path := filepath.Join(tmpDir, "conf", "chatserve.toml")

			Expect(execute("init", path)).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Wrote default configuration to " + path))

			var written map[string]any
			_, err := toml.DecodeFile(path, &written)
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(HaveKeyWithValue("listen", ":8000"))
			Expect(written).To(HaveKeyWithValue("served_model", "chatserve"))
			Expect(written).To(HaveKey("engine"))
			Expect(written["engine"]).To(HaveKeyWithValue("type", "echo"))
			Expect(written["engine"]).To(HaveKeyWithValue("timeout", "5m0s"))
		})

		It("refuses to overwrite without --force", func() {
			path := filepath.Join(tmpDir, "chatserve.toml")
			Expect(os.WriteFile(path, []byte("debug = true\n"), 0o644)).To(Succeed())

			Expect(execute("init", path)).To(MatchError(ContainSubstring("already exists")))

			Expect(execute("init", "--force", path)).To(Succeed())
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("listen"))
		})
	})

	Describe("show", func() {
		It("prints the effective configuration", func() {
			cfg := config.Default()
			cfg.Engine.Type = config.EngineOllama
			cfg.Engine.Model = "llama3.2"
			path := filepath.Join(tmpDir, "chatserve.toml")
			Expect(config.Write(path, cfg, false)).To(Succeed())

			Expect(execute("show", "--config", path)).To(Succeed())

			var shown map[string]any
			_, err := toml.Decode(out.String(), &shown)
			Expect(err).NotTo(HaveOccurred())
			Expect(shown["engine"]).To(HaveKeyWithValue("type", "ollama"))
			Expect(shown["engine"]).To(HaveKeyWithValue("model", "llama3.2"))
		})
	})
})
