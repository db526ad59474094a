package main

import (
	"log"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/joho/godotenv"

	"github.com/iliyamo/community-events/internal/utils"
)

const DevTokenVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Development access tokens for the community events server.

The signing secret defaults to JWT_SECRET, read from the environment or .env.

Usage:
    devtoken issue <user_id> [--name=<name>] [--ttl=<minutes>] [--secret=<secret>]
    devtoken inspect <token> [--secret=<secret>]

Options:
    -h --help            Show this screen.
    --version            Show version.
    --name=<name>        Display name claim.
    --ttl=<minutes>      Token lifetime in minutes [default: 60].
    --secret=<secret>    HS256 signing secret.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], DevTokenVersion)
	if err != nil {
		panic(err)
	}
	_ = godotenv.Load()

	if issue_, _ := opts.Bool("issue"); issue_ {
		issue(opts)
	} else if inspect_, _ := opts.Bool("inspect"); inspect_ {
		inspect(opts)
	}
}

func secret(opts docopt.Opts) string {
	if s, _ := opts.String("--secret"); s != "" {
		return s
	}
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return s
	}
	Err.Fatal("no secret: pass --secret or set JWT_SECRET")
	return ""
}

func issue(opts docopt.Opts) {
	userID, _ := opts.String("<user_id>")
	name, _ := opts.String("--name")
	ttl, err := opts.Int("--ttl")
	if err != nil {
		Err.Fatalf("invalid --ttl: %v", err)
	}
	tok, err := utils.NewAccessToken(secret(opts), userID, name, ttl)
	if err != nil {
		Err.Fatal(err)
	}
	Out.Printf("%s", tok.Token)
	Err.Printf("expires %s", tok.Exp.Format("2006-01-02 15:04:05 MST"))
}

func inspect(opts docopt.Opts) {
	raw, _ := opts.String("<token>")
	sub, err := utils.ParseAccessToken(secret(opts), raw)
	if err != nil {
		Err.Fatal(err)
	}
	Out.Printf("user_id=%s", sub)
}
