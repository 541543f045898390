package injector

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		tail string
		want Classification
	}{
		{
			"multi-option consent",
			"Claude wants to run: rm -rf build\n\nDo you want to proceed?\n❯ 1. Yes\n  2. Yes, and don't ask again\n  3. No",
			ClassMultiOption,
		},
		{
			"multi-option consent option 2 only",
			"Do you want to proceed?\n  2. Yes, and don't ask again",
			ClassMultiOption,
		},
		{
			"single option highlighted",
			"Ready to apply the edit\n❯ 1. Yes",
			ClassSingleOption,
		},
		{
			"single option alternate marker",
			"Ready to apply the edit\n▷ 1. Yes",
			ClassSingleOption,
		},
		{
			"y/n lower",
			"Overwrite existing file? (y/n)",
			ClassYesNo,
		},
		{
			"y/n default yes",
			"Continue? [Y/n]",
			ClassYesNo,
		},
		{
			"y/n default no",
			"Continue? [y/N]",
			ClassYesNo,
		},
		{
			"press enter",
			"Press Enter to continue",
			ClassPressEnter,
		},
		{
			"enter to confirm",
			"Enter to confirm the change",
			ClassPressEnter,
		},
		{
			"working spinner",
			"✻ Clauding… (esc to interrupt)",
			ClassWorking,
		},
		{
			"working processing",
			"Processing… 12s",
			ClassWorking,
		},
		{
			"idle boxed prompt",
			"Some earlier output\n╭──────╮\n│ > \n╰──────╯",
			ClassIdle,
		},
		{
			"idle bare prompt",
			"done.\n> ",
			ClassIdle,
		},
		{
			"error line",
			"Error: compilation failed\nsee above",
			ClassError,
		},
		{
			"lowercase failed",
			"2 tests failed\nexit status 1",
			ClassError,
		},
		{
			"nothing recognizable",
			"streaming some ordinary output\nmore text",
			ClassUnknown,
		},
		{
			"empty tail",
			"",
			ClassUnknown,
		},
		{
			"consent outranks idle prompt",
			"│ > \nDo you want to proceed?\n❯ 1. Yes",
			ClassMultiOption,
		},
		{
			"working outranks error text in scrollback",
			"Error: earlier failure\nWorking…",
			ClassWorking,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.tail); got != tc.want {
				t.Errorf("Classify(%q) = %s, want %s", tc.tail, got, tc.want)
			}
		})
	}
}

// The classifier is a pure function: repeated calls over the same tail agree.
func TestClassifyPure(t *testing.T) {
	tail := "Do you want to proceed?\n❯ 1. Yes\n  2. Yes, and don't ask again"
	first := Classify(tail)
	for i := 0; i < 100; i++ {
		if got := Classify(tail); got != first {
			t.Fatalf("classification changed on call %d: %s vs %s", i, got, first)
		}
	}
}
