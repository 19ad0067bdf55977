package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/and161185/codepilot/internal/api"
	"github.com/and161185/codepilot/internal/catalog"
)

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// readInput resolves "-" to stdin and "@path" to a file; anything else is literal text.
func readInput(s string) (string, error) {
	switch {
	case s == "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	case strings.HasPrefix(s, "@"):
		b, err := os.ReadFile(s[1:])
		return string(b), err
	}
	return s, nil
}

func parseExpiry(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().Add(15 * time.Minute)
}

func credentialsFlags(name string, args []string) (string, string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	email := fs.String("email", "", "email")
	p := fs.String("p", "", "password")
	_ = fs.Parse(args)
	if *email == "" || *p == "" {
		fmt.Fprintln(os.Stderr, "need -email and -p")
		os.Exit(1)
	}
	return *email, *p
}

func cmdRegister(args []string, o dialOpts) {
	email, p := credentialsFlags("register", args)
	ctx, cancel := withTimeout()
	defer cancel()

	cc, cli, err := dial(ctx, o, "")
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	resp, err := cli.Register(ctx, &api.RegisterRequest{Email: email, Password: p})
	if err != nil {
		fail(err)
	}
	fmt.Println(resp.UserID)
}

func cmdLogin(args []string, o dialOpts) {
	email, p := credentialsFlags("login", args)
	ctx, cancel := withTimeout()
	defer cancel()

	cc, cli, err := dial(ctx, o, "")
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	resp, err := cli.Login(ctx, &api.LoginRequest{Email: email, Password: p})
	if err != nil {
		fail(err)
	}
	tf := tokenFile{AccessToken: resp.AccessToken, ExpiresAt: parseExpiry(resp.ExpiresAt), UserID: resp.UserID}
	if err := saveToken(tf); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdDashboard(o dialOpts, asJSON bool) {
	ctx, cancel := withTimeout()
	defer cancel()
	cc, cli := dialAuthed(ctx, o)
	defer cc.Close()

	d, err := cli.GetDashboard(ctx, &api.GetDashboardRequest{})
	if err != nil {
		fail(err)
	}
	if asJSON {
		printJSON(d)
		return
	}
	renderDashboard(os.Stdout, d)
}

func cmdTools(o dialOpts, asJSON bool) {
	ctx, cancel := withTimeout()
	defer cancel()
	cc, cli, err := dial(ctx, o, "")
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	resp, err := cli.ListTools(ctx, &api.ListToolsRequest{})
	if err != nil {
		fail(err)
	}
	if asJSON {
		printJSON(resp.Tools)
		return
	}
	renderTools(os.Stdout, resp.Tools)
}

// toolCost looks up the fixed price of a tool.
func toolCost(name string) (int, error) {
	t, ok := catalog.Lookup(strings.TrimSpace(name))
	if !ok {
		return 0, fmt.Errorf("unknown tool %q (see `cp tools`)", name)
	}
	return t.Cost, nil
}

// useRequest resolves the tool price and the input text. Both are checked before any
// call that could charge credits.
func useRequest(tool, input string) (int, string, error) {
	cost, err := toolCost(tool)
	if err != nil {
		return 0, "", err
	}
	in, err := readInput(input)
	if err != nil {
		return 0, "", err
	}
	if strings.TrimSpace(in) == "" {
		return 0, "", errors.New("need -input: the tool has nothing to work on")
	}
	return cost, in, nil
}

func cmdUse(args []string, o dialOpts, asJSON bool) {
	fs := flag.NewFlagSet("use", flag.ExitOnError)
	tool := fs.String("tool", "", "tool name")
	input := fs.String("input", "", "input text, @file or - for stdin")
	output := fs.String("output", "", "generated output to record")
	_ = fs.Parse(args)
	if *tool == "" {
		fmt.Fprintln(os.Stderr, "need -tool")
		os.Exit(1)
	}
	cost, in, err := useRequest(*tool, *input)
	if err != nil {
		fail(err)
	}

	ctx, cancel := withTimeout()
	defer cancel()
	cc, cli := dialAuthed(ctx, o)
	defer cc.Close()

	check, err := cli.CheckCredits(ctx, &api.CheckCreditsRequest{Cost: cost})
	if err != nil {
		fail(err)
	}
	if !check.Allowed {
		fail(fmt.Errorf("insufficient credits: %s costs %d, balance %d", *tool, cost, check.Balance))
	}

	resp, err := cli.DeductCredits(ctx, &api.DeductCreditsRequest{ToolName: *tool, Cost: cost, Input: in, Output: *output})
	if err != nil {
		fail(err)
	}
	if asJSON {
		printJSON(resp.Receipt)
		return
	}
	renderReceipt(os.Stdout, resp.Receipt)
}

func cmdProfile(args []string, o dialOpts, asJSON bool) {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	plan := fs.String("plan", "", "plan: Free, Pro or Team")
	_ = fs.Parse(args)

	req := &api.UpdateProfileRequest{}
	if *name != "" {
		req.DisplayName = name
	}
	if *plan != "" {
		req.Plan = plan
	}
	if req.DisplayName == nil && req.Plan == nil {
		fmt.Fprintln(os.Stderr, "need -name and/or -plan")
		os.Exit(1)
	}

	ctx, cancel := withTimeout()
	defer cancel()
	cc, cli := dialAuthed(ctx, o)
	defer cc.Close()

	resp, err := cli.UpdateProfile(ctx, req)
	if err != nil {
		fail(err)
	}
	if asJSON {
		printJSON(resp.Profile)
		return
	}
	renderProfile(os.Stdout, &resp.Profile)
}

func cmdWatch(o dialOpts, asJSON bool) {
	ctx, cancel := signalContext()
	defer cancel()
	cc, cli := dialAuthed(ctx, o)
	defer cc.Close()

	stream, err := cli.Watch(ctx, &api.WatchRequest{})
	if err != nil {
		fail(err)
	}
	for {
		c, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			fail(err)
		}
		if asJSON {
			printJSON(c)
			continue
		}
		renderChange(os.Stdout, c)
	}
}

// ---- rendering ----

func displayName(p *api.Profile) string {
	switch {
	case p.DisplayName != nil && *p.DisplayName != "":
		return *p.DisplayName
	case p.Email != nil:
		return *p.Email
	}
	return p.UserID
}

func renderProfile(w io.Writer, p *api.Profile) {
	fmt.Fprintf(w, "%s  plan=%s  credits=%d  tasks this month=%d\n",
		displayName(p), p.Plan, p.CreditsRemaining, p.TasksThisMonth)
}

func renderDashboard(w io.Writer, d *api.Dashboard) {
	switch {
	case d.Profile != nil:
		renderProfile(w, d.Profile)
	case d.Loading:
		fmt.Fprintln(w, "profile loading...")
	default:
		fmt.Fprintln(w, "profile unavailable")
	}
	if len(d.Activities) == 0 {
		fmt.Fprintln(w, "no recent activity")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tTOOL\tCREDITS\tINPUT")
	for _, a := range d.Activities {
		in := ""
		if a.InputSnippet != nil {
			in = strings.ReplaceAll(*a.InputSnippet, "\n", " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.CreatedAt, a.ToolName, a.CreditsUsed, in)
	}
	_ = tw.Flush()
}

func renderTools(w io.Writer, tools []api.Tool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tCOST")
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Name, t.Title, t.Cost)
	}
	_ = tw.Flush()
}

func renderReceipt(w io.Writer, r api.Receipt) {
	fmt.Fprintf(w, "used %d credit(s) for %s, %d left\n", r.Cost, r.ToolName, r.NewBalance)
	if r.ActivityFailed {
		fmt.Fprintln(w, "warning: activity was not recorded")
	}
}

func renderChange(w io.Writer, c *api.Change) {
	switch {
	case c.Notice != nil:
		fmt.Fprintf(w, "[%s] %s\n", c.Notice.Level, c.Notice.Message)
	case c.Profile != nil:
		fmt.Fprint(w, "profile: ")
		renderProfile(w, c.Profile)
	case c.Activity != nil:
		fmt.Fprintf(w, "activity: %s (%d credits)\n", c.Activity.ToolName, c.Activity.CreditsUsed)
	case c.Receipt != nil:
		fmt.Fprint(w, "deducted: ")
		renderReceipt(w, *c.Receipt)
	default:
		fmt.Fprintf(w, "%s\n", c.Kind)
	}
}
