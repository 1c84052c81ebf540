package solver_test

import (
	"context"
	"errors"
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"gsd.app/relay/internal/solver"
)

var _ = Describe("ExecSolver", func() {
	var ctx context.Context

	BeforeEach(func() {
		if _, err := exec.LookPath("sh"); err != nil {
			Skip("sh not available")
		}
		ctx = context.Background()
	})

	shell := func(script string, env ...string) *solver.ExecSolver {
		return solver.NewExecSolver(solver.Command{Name: "sh", Args: []string{"-c", script}, Env: env}, nil)
	}

	It("feeds the payload on stdin and returns stdout", func() {
		out, err := shell("cat").Solve(ctx, []byte(`{"job":"move","to":{"x_coord":"3","y_coord":"4"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal(`{"job":"move","to":{"x_coord":"3","y_coord":"4"}}`))
	})

	It("keeps stderr out of the result", func() {
		out, err := shell(`echo "warming up" >&2; printf 'INSTRUCTIONS:FORWARD,2;TURN,1,LEFT'`).Solve(ctx, []byte("null"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("INSTRUCTIONS:FORWARD,2;TURN,1,LEFT"))
	})

	It("passes extra environment", func() {
		out, err := shell(`printf "$WAREHOUSE_MODE"`, "WAREHOUSE_MODE=dry-run").Solve(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("dry-run"))
	})

	It("reports a nonzero exit with its stderr", func() {
		_, err := shell(`echo "no path to (9,9)" >&2; exit 3`).Solve(ctx, []byte("null"))

		var invErr *solver.SolverInvocationError
		Expect(errors.As(err, &invErr)).To(BeTrue())
		Expect(invErr.ExitCode).To(Equal(3))
		Expect(invErr.Stderr).To(Equal("no path to (9,9)"))
		Expect(invErr.Timeout).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("status 3"))
	})

	It("reports a missing executable", func() {
		s := solver.NewExecSolver(solver.Command{Name: "/nonexistent/warehouse"}, nil)
		_, err := s.Solve(ctx, []byte("null"))

		var invErr *solver.SolverInvocationError
		Expect(errors.As(err, &invErr)).To(BeTrue())
		Expect(invErr.ExitCode).To(Equal(-1))
	})

	It("kills the process when the deadline passes", func() {
		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := shell("exec sleep 5").Solve(ctx, []byte("null"))

		Expect(err).To(MatchError(solver.ErrTimeout))
		Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))

		var invErr *solver.SolverInvocationError
		Expect(errors.As(err, &invErr)).To(BeTrue())
		Expect(invErr.Timeout).To(BeTrue())
	})
})

var _ = Describe("Func", func() {
	It("adapts a function", func() {
		var s solver.Solver = solver.Func(func(ctx context.Context, payload []byte) ([]byte, error) {
			return append([]byte("echo:"), payload...), nil
		})
		out, err := s.Solve(context.Background(), []byte("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("echo:x"))
	})
})
