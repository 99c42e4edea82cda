package internal

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

const (
	LINUX_USER        = "bridge-carousel"
	LINUX_BIN         = "/usr/local/bin/bridge-carousel"
	LINUX_CONFIG_DIR  = "/etc/bridge-carousel"
	LINUX_CONFIG_FILE = LINUX_CONFIG_DIR + "/config.json"
	LINUX_LOG_DIR     = "/var/log/bridge-carousel"
)

// envStep is a single shell command executed while preparing or removing the service environment.
// A failed step aborts the sequence only if it is marked as required.
type envStep struct {
	desc     string
	args     []string
	required bool
	skip     func() bool
}

// commandRunner is replaced in tests.
var commandRunner = func(args ...string) error {
	return exec.Command(args[0], args[1:]...).Run()
}

func runEnvSteps(steps []envStep) error {
	for i, step := range steps {
		n := i + 1
		if step.skip != nil && step.skip() {
			fmt.Printf("%d. %s skipped\n", n, step.desc)
			continue
		}
		fmt.Printf("%d. %s : %s\n", n, step.desc, strings.Join(step.args, " "))
		if err := commandRunner(step.args...); err != nil {
			fmt.Printf("%d. error : %s\n", n, err.Error())
			if step.required {
				return errors.Wrap(err, step.desc)
			}
			continue
		}
		fmt.Printf("%d. done\n", n)
	}
	return nil
}

// PrepareLinuxServiceEnv creates service user, installs the binary, config and log directories.
func PrepareLinuxServiceEnv() error {
	binaryPath, err := os.Executable()
	if err != nil {
		return err
	}
	noLocalConfig := func() bool {
		_, err := os.Stat("config.json")
		return os.IsNotExist(err)
	}
	return runEnvSteps([]envStep{
		{desc: "creating service user, most likely already exists if it fails", args: []string{"useradd", "-r", "-s", "/bin/false", LINUX_USER}},
		{desc: "copying binary", args: []string{"cp", "-f", binaryPath, LINUX_BIN}, required: true},
		{desc: "creating config folder", args: []string{"mkdir", "-p", LINUX_CONFIG_DIR}, required: true},
		{desc: "copying config file", args: []string{"cp", "config.json", LINUX_CONFIG_DIR}, required: true, skip: noLocalConfig},
		{desc: "creating log directory", args: []string{"mkdir", "-p", LINUX_LOG_DIR}, required: true},
		{desc: "changing owner of log directory", args: []string{"chown", "-R", LINUX_USER + ":" + LINUX_USER, LINUX_LOG_DIR}, required: true},
	})
}

// RemoveLinuxServiceEnv reverts PrepareLinuxServiceEnv, individual failures are reported and ignored.
func RemoveLinuxServiceEnv() error {
	return runEnvSteps([]envStep{
		{desc: "removing service user", args: []string{"userdel", "-r", LINUX_USER}},
		{desc: "removing binary", args: []string{"rm", "-f", LINUX_BIN}},
		{desc: "removing config file", args: []string{"rm", "-f", LINUX_CONFIG_FILE}},
		{desc: "removing log directory", args: []string{"rm", "-rf", LINUX_LOG_DIR}},
	})
}

func UpdateLinuxServiceBinary() error {
	fmt.Println("WARNING: This operation will update bridge-carousel binary.It might require root privileges or executed using sudo command.")
	binaryPath, err := os.Executable()
	if err != nil {
		return err
	}
	return runEnvSteps([]envStep{
		{desc: "stopping service, stop it manually if it fails", args: []string{"systemctl", "stop", LINUX_USER}},
		{desc: "copying binary", args: []string{"cp", "-f", binaryPath, LINUX_BIN}, required: true},
		{desc: "starting service, start it manually if it fails", args: []string{"systemctl", "start", LINUX_USER}},
	})
}
