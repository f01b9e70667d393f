package kmain

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Poseidon-fan/Artemos/kernel/config"
	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
	"github.com/Poseidon-fan/Artemos/kernel/syscall"
	"github.com/Poseidon-fan/Artemos/kernel/task"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
	"github.com/Poseidon-fan/Artemos/user/apps"
	"github.com/Poseidon-fan/Artemos/user/rvasm"
)

// syncBuffer is written by the firmware and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(harts int) config.Config {
	cfg := config.Default()
	cfg.MemoryEnd = 0x8100_0000
	cfg.Harts = harts
	cfg.LogLevel = "info"
	cfg.LogColors = false
	return cfg
}

func builtinApps() map[string][]byte {
	images, err := apps.All()
	Expect(err).NotTo(HaveOccurred())
	return images
}

// exitWith returns a program that exits with code.
func exitWith(code int64) []byte {
	a := rvasm.New()
	a.Label("_start")
	a.Li(rvasm.A0, code)
	a.Li(rvasm.A7, syscall.SysExit)
	a.Ecall()
	img, err := a.Link(apps.TextBase, "_start")
	Expect(err).NotTo(HaveOccurred())
	return img.ELF()
}

func boot(opts Options) (*Kernel, sbi.Status) {
	k, err := New(opts)
	Expect(err).NotTo(HaveOccurred())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	return k, k.Run(ctx)
}

var _ = Describe("Kernel", func() {
	var out *syncBuffer

	BeforeEach(func() {
		out = &syncBuffer{}
	})

	It("should run shell commands until shutdown", func() {
		input := strings.Join([]string{
			"hello",
			"echo a  b",
			"forktest",
			"exit",
			"yield",
			"fault_store",
			"fault_illegal",
			"nosuchapp",
			"shutdown",
		}, "\n") + "\n"

		k, status := boot(Options{
			Config: testConfig(1),
			Stdin:  strings.NewReader(input),
			Stdout: out,
			Apps:   builtinApps(),
		})

		Expect(status).To(Equal(sbi.StatusShutdown))

		console := out.String()
		Expect(console).To(ContainSubstring("Artemos user shell"))
		Expect(console).To(ContainSubstring("Hello, world!"))
		Expect(console).To(ContainSubstring("a b\n"))
		Expect(console).To(ContainSubstring("forktest pass."))
		Expect(console).To(ContainSubstring("exit pass."))
		Expect(console).To(ContainSubstring("yield pass."))
		Expect(console).To(ContainSubstring("exited with code -2"))
		Expect(console).To(ContainSubstring("exited with code -3"))
		Expect(console).To(ContainSubstring("Error when executing!"))
		Expect(console).To(ContainSubstring("exited with code -4"))
		Expect(console).NotTo(ContainSubstring("failed"))
		Expect(console).NotTo(ContainSubstring("kernel panic"))

		Expect(k.Scheduler().InitProc()).NotTo(BeNil())
	})

	It("should power off when initproc exits", func() {
		images := map[string][]byte{InitProc: exitWith(0)}
		_, status := boot(Options{Config: testConfig(1), Stdout: out, Apps: images})
		Expect(status).To(Equal(sbi.StatusShutdown))
		Expect(out.String()).To(ContainSubstring("initproc exited with code 0"))
	})

	It("should report a failure when initproc exits with an error", func() {
		images := map[string][]byte{InitProc: exitWith(3)}
		_, status := boot(Options{Config: testConfig(1), Stdout: out, Apps: images})
		Expect(status).To(Equal(sbi.StatusFailure))
	})

	It("should spread processes over several harts", func() {
		events := &trace.MemoryWriter{}
		k, err := New(Options{
			Config: testConfig(2),
			Stdin:  strings.NewReader("forktest\nshutdown\n"),
			Stdout: out,
			Apps:   builtinApps(),
		})
		Expect(err).NotTo(HaveOccurred())
		k.AcceptHook(trace.NewRecorder(k.Now, events))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		Expect(k.Run(ctx)).To(Equal(sbi.StatusShutdown))
		Expect(out.String()).To(ContainSubstring("forktest pass."))

		Expect(events.Filter(task.HookPosProcessCreated.Name)).NotTo(BeEmpty())
		Expect(events.Filter(syscall.HookPosSyscall.Name)).NotTo(BeEmpty())
		Expect(events.Filter(task.HookPosProcessReaped.Name)).NotTo(BeEmpty())
	})

	It("should stop when the context is cancelled", func() {
		k, err := New(Options{Config: testConfig(1), Stdout: out, Apps: builtinApps()})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		Expect(k.Run(ctx)).To(Equal(sbi.StatusCancelled))
	})

	It("should reject broken setups", func() {
		_, err := New(Options{Config: testConfig(1), Stdout: out, Apps: map[string][]byte{"hello": exitWith(0)}})
		Expect(err).To(MatchError(errNoInitProc))

		_, err = New(Options{Config: testConfig(1), Stdout: out, Apps: map[string][]byte{InitProc: []byte("junk")}})
		Expect(err).To(HaveOccurred())

		cfg := testConfig(0)
		_, err = New(Options{Config: cfg, Stdout: out, Apps: builtinApps()})
		Expect(err).To(HaveOccurred())
	})
})
