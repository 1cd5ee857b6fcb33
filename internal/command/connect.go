package command

import (
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/dalnet/rbnc/internal/model"
)

// ConnectOutcome says which way /connect argument parsing went
type ConnectOutcome int

const (
	// ConnectOK means Params is ready to use
	ConnectOK ConnectOutcome = iota
	// ConnectHelp means the user asked for usage
	ConnectHelp
	// ConnectInvalid means the arguments were malformed; Reason says why
	ConnectInvalid
)

// ConnectResult is the outcome of parsing /connect arguments
type ConnectResult struct {
	Outcome ConnectOutcome
	Params  model.ServerParams
	Reason  string
	// Usage is the help text, one entry per line. Set unless Outcome is ConnectOK.
	Usage []string
}

const connectSynopsis = "usage: connect [-h] [-s] [-p PORT] [-n NICK] [-r REALNAME] [-u USERNAME] host"

// ParseConnect parses the argument string of /connect. Identity fields not
// given on the command line default to those of user.
func ParseConnect(args string, user model.User) ConnectResult {
	p := model.ServerParams{UserID: user.ID}
	var help bool

	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.SortFlags = false

	fs.BoolVarP(&help, "help", "h", false, "Show this help")
	fs.BoolVarP(&p.Secure, "secure", "s", false, "Enable ssl/tls for this server")
	fs.IntVarP(&p.Port, "port", "p", model.DefaultPort, "The port to connect on")
	fs.StringVarP(&p.Nick, "nick", "n", user.Nick, "The nick to use on this server")
	fs.StringVarP(&p.Realname, "realname", "r", user.Realname, "The real name to use on this server")
	fs.StringVarP(&p.Username, "username", "u", user.Username, "The username to use on this server")

	invalid := func(format string, a ...any) ConnectResult {
		reason := fmt.Sprintf(format, a...)
		usage := append([]string{"connect: error: " + reason}, connectUsage(fs)...)
		return ConnectResult{Outcome: ConnectInvalid, Reason: reason, Usage: usage}
	}

	if err := fs.Parse(strings.Fields(args)); err != nil {
		if err == flag.ErrHelp {
			return ConnectResult{Outcome: ConnectHelp, Usage: connectUsage(fs)}
		}
		return invalid("%v", err)
	}
	if help {
		return ConnectResult{Outcome: ConnectHelp, Usage: connectUsage(fs)}
	}

	switch positional := fs.Args(); len(positional) {
	case 0:
		return invalid("the following arguments are required: host")
	case 1:
		p.Host = positional[0]
	default:
		return invalid("unrecognized arguments: %s", strings.Join(positional[1:], " "))
	}

	if p.Port < 1 || p.Port > 65535 {
		return invalid("port %d out of range 1-65535", p.Port)
	}
	if p.Nick == "" {
		return invalid("no nick given and no default nick set")
	}

	return ConnectResult{Outcome: ConnectOK, Params: p}
}

func connectUsage(fs *flag.FlagSet) []string {
	lines := []string{
		connectSynopsis,
		"positional arguments:",
		"  host  The server to connect to",
		"options:",
	}
	for _, l := range strings.Split(fs.FlagUsages(), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimRight(l, " "))
		}
	}
	return lines
}
