package fcatcli

import (
	"reflect"
	"testing"
)

func TestRewriteArgsForImplicitQ(t *testing.T) {
	root := NewRootCommand()

	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "empty", in: nil, want: nil},
		{name: "explicit_q", in: []string{"q", "hello"}, want: []string{"q", "hello"}},
		{name: "explicit_scan", in: []string{"scan", "."}, want: []string{"scan", "."}},
		{name: "implicit_query_single", in: []string{"hello"}, want: []string{"q", "hello"}},
		{name: "implicit_query_multi", in: []string{"hello", "world"}, want: []string{"q", "hello", "world"}},
		{name: "implicit_query_with_database_flag", in: []string{"-d", "demo.db", "hello"}, want: []string{"q", "-d", "demo.db", "hello"}},
		{name: "implicit_query_with_sort", in: []string{"--sort", "size_desc", "beach"}, want: []string{"q", "--sort", "size_desc", "beach"}},
		{name: "explicit_scan_with_database_flag", in: []string{"-d", "demo.db", "scan", "."}, want: []string{"-d", "demo.db", "scan", "."}},
		{name: "explain_consumes_format", in: []string{"--explain", "json", "stats"}, want: []string{"--explain", "json", "stats"}},
		{name: "explain_without_format", in: []string{"--explain", "beach"}, want: []string{"q", "--explain", "beach"}},
		{name: "root_only_flags", in: []string{"--version"}, want: []string{"--version"}},
		{name: "help_command", in: []string{"help"}, want: []string{"help"}},
		{name: "completion_command", in: []string{"completion", "bash"}, want: []string{"completion", "bash"}},
		{name: "dash_dash_keeps_positional", in: []string{"--", "-foo"}, want: []string{"q", "--", "-foo"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RewriteArgsForImplicitQ(root, tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}
