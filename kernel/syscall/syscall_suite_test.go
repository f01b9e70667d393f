package syscall

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

//go:generate go run go.uber.org/mock/mockgen -destination "mock_sbi_test.go" -package $GOPACKAGE -write_package_comment=false github.com/Poseidon-fan/Artemos/kernel/hal/sbi Platform

func TestSyscall(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Syscall Suite")
}
