package apps

import "github.com/Poseidon-fan/Artemos/user/rvasm"

// Register names as they appear in assembly listings.
const (
	zero = rvasm.Zero
	ra   = rvasm.RA
	sp   = rvasm.SP

	a0 = rvasm.A0
	a1 = rvasm.A1
	a2 = rvasm.A2
	a7 = rvasm.A7

	t0 = rvasm.T0
	t1 = rvasm.T1
	t2 = rvasm.T2
	t3 = rvasm.T3
	t4 = rvasm.T4

	s0 = rvasm.S0
	s1 = rvasm.S1
	s2 = rvasm.S2
	s3 = rvasm.S3
	s4 = rvasm.S4
)
