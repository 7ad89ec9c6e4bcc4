package credentials_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clidram/medrag/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credentials-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("NewManager", func() {
		It("creates a manager with an override directory", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr).NotTo(BeNil())
			Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Google.APIKey).To(BeEmpty())
		})

		It("round-trips through Save", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetKey("secret", "gemini-1.5-flash")).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Google.APIKey).To(Equal("secret"))
			Expect(creds.Google.Model).To(Equal("gemini-1.5-flash"))
		})

		It("rejects malformed TOML", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			path := filepath.Join(tmpDir, "credentials.toml")
			Expect(os.WriteFile(path, []byte("not [valid"), 0o600)).To(Succeed())

			_, err = mgr.Load()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Save", func() {
		It("writes the file with 0600 permissions", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetKey("secret", "")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("rejects nil credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.Save(nil)).To(HaveOccurred())
		})
	})

	Describe("Resolve", func() {
		It("prefers the environment variable over the stored key", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("stored", "")).To(Succeed())

			GinkgoT().Setenv(credentials.EnvAPIKey, "from-env")

			key, err := mgr.Resolve()
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("from-env"))
		})

		It("falls back to the stored key", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("stored", "")).To(Succeed())

			GinkgoT().Setenv(credentials.EnvAPIKey, "")

			key, err := mgr.Resolve()
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("stored"))
		})
	})

	Describe("RemoveKey", func() {
		It("clears the stored credential", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("secret", "model")).To(Succeed())

			Expect(mgr.RemoveKey()).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Google.APIKey).To(BeEmpty())
		})
	})

	Describe("Watch", func() {
		It("observes credential file writes", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			seen := make(chan string, 1)
			go func() {
				_ = mgr.Watch(ctx, func(creds *credentials.Credentials) {
					select {
					case seen <- creds.Google.APIKey:
					default:
					}
				})
			}()

			// give the watcher a moment to register
			time.Sleep(100 * time.Millisecond)
			Expect(mgr.SetKey("rotated", "")).To(Succeed())

			Eventually(seen, "3s").Should(Receive(Equal("rotated")))
		})
	})
})
