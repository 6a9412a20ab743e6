package cli_test

import (
	"testing"

	"github.com/calvinalkan/shmcache/internal/cli"
)

func Test_Usage_Printed_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: shmq")
	cli.AssertContains(t, stdout, "--segment")

	for _, name := range []string{"create", "destroy", "info", "sync", "store", "fetch", "peek", "delete", "oldest", "watermark", "inuse", "dump", "repl", "print-config"} {
		cli.AssertContains(t, stdout, "  "+name)
	}
}

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "info")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")
	cli.AssertContains(t, stderr, "Global flags:")
	cli.AssertContains(t, stderr, "--cwd")
	cli.AssertContains(t, stderr, "--config")
}

func Test_Empty_Segment_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--segment=", "info")

	cli.AssertContains(t, stderr, "--segment cannot be empty")
}

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Commands:")
}

func Test_Command_Help_When_Flag_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("create", "--help")

	cli.AssertContains(t, stdout, "Usage: shmq create [flags]")
	cli.AssertContains(t, stdout, "--slots")
	cli.AssertContains(t, stdout, "--payload-size")
}

func Test_Command_Flag_Error_Prints_Help_When_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("create", "--slots=many")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "error:")
	cli.AssertContains(t, stderr, "--slots")
	cli.AssertContains(t, stdout, "Usage: shmq create")
}

func Test_Commands_Fail_When_Segment_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, args := range [][]string{
		{"info"}, {"fetch", "k"}, {"peek", "k"}, {"delete", "k"},
		{"store", "k", "v"}, {"oldest"}, {"inuse"}, {"watermark"}, {"dump"}, {"sync"},
	} {
		stderr := c.MustFail(args...)
		cli.AssertContains(t, stderr, "segment does not exist")
	}
}
