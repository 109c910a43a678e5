package di

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mikey/threat-scorer/internal/adapters/store"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/ports"
)

const message = "From: Amazon Orders <orders@amaz0n-billing.net>\r\n" +
	"Reply-To: help@amaz0n-support.org\r\n" +
	"Subject: Your order is on hold\r\n" +
	"\r\n" +
	"Update your card at http://192.0.2.10/login and http://bit.ly/upd8\r\n"

func TestBuildCLIContainer(t *testing.T) {
	flags := &CLIFlags{
		Classifier: "none",
		Format:     "json",
		Blacklist:  "amaz0n-billing.net",
		Disable:    "reply_to, ip_abuse",
	}
	var out bytes.Buffer

	container, err := BuildCLIContainer(flags, &out)
	if err != nil {
		t.Fatalf("BuildCLIContainer failed: %v", err)
	}

	err = container.Invoke(func(filter ports.EmailFilter, st store.Store) error {
		defer st.Close()

		analysis, err := filter.ProcessMessage(context.Background(), []byte(message))
		if err != nil {
			return err
		}
		// blacklist 25 + display name 12 + two suspicious links 7
		if analysis.Score != 44 || analysis.Verdict != core.VerdictSuspicious {
			t.Errorf("got %d/%s, want 44/Suspicious", analysis.Score, analysis.Verdict)
		}
		for _, e := range analysis.Explanations {
			if e.Signal == core.SignalReplyTo {
				t.Error("disabled reply_to signal contributed")
			}
		}

		history, err := st.Recent(context.Background())
		if err != nil || len(history) != 1 {
			t.Errorf("history = %v, %v", history, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if !strings.Contains(out.String(), `"verdict": "Suspicious"`) {
		t.Errorf("unexpected CLI output:\n%s", out.String())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Error("empty input should give nil")
	}
}
