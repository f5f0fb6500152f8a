package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grblmini/gms/grbl"
)

func TestConsoleHandle(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		imperial bool
		expected []grbl.Command
	}{
		{
			name:     "plain line",
			line:     "G0 X10",
			expected: []grbl.Command{grbl.SendLine{Text: "G0 X10"}},
		},
		{
			name: "blank",
			line: "   ",
		},
		{
			name: "help",
			line: ":help",
		},
		{
			name:     "status",
			line:     ":status",
			expected: []grbl.Command{grbl.RealTime{Cmd: grbl.RealTimeStatusQuery}},
		},
		{
			name: "hold",
			line: ":hold",
			expected: []grbl.Command{
				grbl.RealTime{Cmd: grbl.RealTimeFeedHold},
				grbl.Hold{},
			},
		},
		{
			name: "resume",
			line: ":resume",
			expected: []grbl.Command{
				grbl.RealTime{Cmd: grbl.RealTimeCycleStartResume},
				grbl.Resume{},
			},
		},
		{
			name:     "reset",
			line:     ":reset",
			expected: []grbl.Command{grbl.SoftReset{}},
		},
		{
			name:     "cancel",
			line:     ":cancel",
			expected: []grbl.Command{grbl.CancelJob{}},
		},
		{
			name:     "jog cancel",
			line:     ":jogcancel",
			expected: []grbl.Command{grbl.RealTime{Cmd: grbl.RealTimeJogCancel}},
		},
		{
			name:     "quit",
			line:     ":quit",
			expected: []grbl.Command{grbl.Shutdown{}},
		},
		{
			name: "unknown",
			line: ":bogus",
		},
		{
			name: "run missing path",
			line: ":run",
		},
		{
			name:     "jog",
			line:     ":jog X 10.5 500",
			expected: []grbl.Command{grbl.SendLine{Text: "$J=G21 G91 X10.5 F500"}},
		},
		{
			name:     "jog default z feed",
			line:     ":jog z -1",
			expected: []grbl.Command{grbl.SendLine{Text: "$J=G21 G91 Z-1 F30"}},
		},
		{
			name:     "jog default xy feed",
			line:     ":jog Y 5",
			expected: []grbl.Command{grbl.SendLine{Text: "$J=G21 G91 Y5 F50"}},
		},
		{
			name:     "jog imperial",
			line:     ":jog X 2",
			imperial: true,
			expected: []grbl.Command{grbl.SendLine{Text: "$J=G20 G91 X2 F50"}},
		},
		{
			name: "jog missing distance",
			line: ":jog X",
		},
		{
			name: "jog bad axis",
			line: ":jog A 5",
		},
		{
			name: "jog bad distance",
			line: ":jog X abc",
		},
		{
			name: "jog bad feed",
			line: ":jog X 5 0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &commandRecorder{}
			c := newConsole(rec.post, nil, tc.imperial)
			c.handle(tc.line)
			require.Equal(t, tc.expected, rec.commands)
		})
	}
}

func TestConsoleFeedOverride(t *testing.T) {
	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)

	c.handle(":feed 153")
	require.Equal(t, 153, c.feedOverride)
	require.Equal(t, []grbl.Command{
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc10},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc10},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc10},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc10},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc10},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc1},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc1},
		grbl.RealTime{Cmd: grbl.RealTimeFeedInc1},
	}, rec.commands)

	rec.commands = nil
	c.handle(":feed-reset")
	require.Equal(t, grbl.OverrideDefault, c.feedOverride)
	require.Equal(t, []grbl.Command{
		grbl.RealTime{Cmd: grbl.RealTimeFeedReset},
	}, rec.commands)
}

func TestConsoleSpindleOverride(t *testing.T) {
	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)

	// Targets below the controller floor are clamped.
	c.handle(":spindle 40")
	require.Equal(t, grbl.SpindleOverrideMin, c.spindleOverride)
	require.Equal(t, []grbl.Command{
		grbl.RealTime{Cmd: grbl.RealTimeSpindleDec10},
		grbl.RealTime{Cmd: grbl.RealTimeSpindleDec10},
		grbl.RealTime{Cmd: grbl.RealTimeSpindleDec10},
		grbl.RealTime{Cmd: grbl.RealTimeSpindleDec10},
		grbl.RealTime{Cmd: grbl.RealTimeSpindleDec10},
	}, rec.commands)

	rec.commands = nil
	c.handle(":spindle-reset")
	require.Equal(t, grbl.OverrideDefault, c.spindleOverride)
	require.Equal(t, []grbl.Command{
		grbl.RealTime{Cmd: grbl.RealTimeSpindleReset},
	}, rec.commands)
}

func TestConsoleOverrideBadInput(t *testing.T) {
	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)

	c.handle(":feed abc")
	c.handle(":feed")
	c.handle(":spindle")
	require.Empty(t, rec.commands)
	require.Equal(t, grbl.OverrideDefault, c.feedOverride)
	require.Equal(t, grbl.OverrideDefault, c.spindleOverride)
}

func TestConsoleStatusRendering(t *testing.T) {
	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)

	raw := "<Idle|MPos:1.000,2.000,3.000|Bf:14,120>"
	report, ok := grbl.ParseStatus(raw)
	require.True(t, ok)

	// Unsolicited reports do not arm the printer.
	c.render(grbl.Status{Raw: raw, Report: report})
	require.False(t, c.statusPending)

	c.handle(":status")
	require.True(t, c.statusPending)
	require.Equal(t, []grbl.Command{
		grbl.RealTime{Cmd: grbl.RealTimeStatusQuery},
	}, rec.commands)

	// The next report satisfies the query.
	c.render(grbl.Status{Raw: raw, Report: report})
	require.False(t, c.statusPending)
}

func TestConsoleRunMacro(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.nc")
	require.NoError(t, os.WriteFile(path, []byte("( tool change )\nM5\nG0 Z10 ; lift\nm6 t2\n\n"), 0644))

	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)
	c.handle(":run " + path)
	require.Equal(t, []grbl.Command{
		grbl.RunLines{Lines: []string{"M5", "G0Z10", "M6T2"}},
	}, rec.commands)
}

func TestConsoleRunMacroEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.nc")
	require.NoError(t, os.WriteFile(path, []byte("( nothing )\n; just comments\n"), 0644))

	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)
	c.handle(":run " + path)
	require.Empty(t, rec.commands)
}

func TestConsoleRunMacroMissing(t *testing.T) {
	rec := &commandRecorder{}
	c := newConsole(rec.post, nil, false)
	c.handle(":run " + filepath.Join(t.TempDir(), "missing.nc"))
	require.Empty(t, rec.commands)
}

func TestMacroLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macro.nc")
	require.NoError(t, os.WriteFile(path, []byte("( preamble )\nG90\n  g0 x0 y0\n"), 0644))

	lines, err := macroLines(path)
	require.NoError(t, err)
	require.Equal(t, []string{"G90", "G0X0Y0"}, lines)
}

func TestFormatStatus(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "full report",
			raw:      "<Hold:0|MPos:5.000,10.000,-2.500|FS:500,8000|Bf:14,120|Pn:XP|A:SF>",
			expected: "Hold:0 | MPos 5,10,-2.5 | Bf 14,120 | F500 | Pn PX | A FS",
		},
		{
			name:     "derived work position",
			raw:      "<Idle|MPos:10.000,20.000,30.000|WCO:1.000,2.000,3.000>",
			expected: "Idle | MPos 10,20,30 | WPos 9,18,27",
		},
		{
			name:     "state only",
			raw:      "<Run|F:0>",
			expected: "Run",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			report, ok := grbl.ParseStatus(tc.raw)
			require.True(t, ok)
			require.Equal(t, tc.expected, formatStatus(grbl.Status{Raw: tc.raw, Report: report}))
		})
	}
}

func TestFormatStatusUnparsed(t *testing.T) {
	require.Equal(t, "<garbled", formatStatus(grbl.Status{Raw: "<garbled"}))
}
