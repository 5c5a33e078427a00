package tzsource

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse_ExtendedExample(t *testing.T) {
	input := strings.TrimSpace(`
# Rule  NAME  FROM  TO    -  IN   ON       AT    SAVE  LETTER/S
Rule    Swiss 1941  1942  -  May  Mon>=1   1:00  1:00  S
Rule    Swiss 1941  1942  -  Oct  Mon>=1   2:00  0     -
Rule    EU    1977  1980  -  Apr  Sun>=1   1:00u 1:00  S
Rule    EU    1977  only  -  Sep  lastSun  1:00u 0     -
Rule    EU    1978  only  -  Oct   1       1:00u 0     -
Rule    EU    1979  1995  -  Sep  lastSun  1:00u 0     -
Rule    EU    1981  max   -  Mar  lastSun  1:00u 1:00  S
Rule    EU    1996  max   -  Oct  lastSun  1:00u 0     -

# Zone  NAME           STDOFF      RULES  FORMAT  [UNTIL]
Zone    Europe/Zurich  0:34:08     -      LMT     1853 Jul 16
                       0:29:45.50  -      BMT     1894 Jun
                       1:00        Swiss  CE%sT   1981
                       1:00        EU     CE%sT

Link    Europe/Zurich  Europe/Vaduz
`)

	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	h := time.Hour
	monAfter1 := Day{Form: DayAfter, Num: 1, Weekday: time.Monday}
	lastSun := Day{Form: DayLast, Weekday: time.Sunday}
	want := File{
		Rules: []RuleLine{
			{Name: "Swiss", From: 1941, To: 1942, In: time.May, On: monAfter1, At: Time{h, WallClock}, Save: h, Letter: "S"},
			{Name: "Swiss", From: 1941, To: 1942, In: time.October, On: monAfter1, At: Time{2 * h, WallClock}},
			{Name: "EU", From: 1977, To: 1980, In: time.April, On: Day{Form: DayAfter, Num: 1}, At: Time{h, UniversalTime}, Save: h, Letter: "S"},
			{Name: "EU", From: 1977, To: 1977, In: time.September, On: lastSun, At: Time{h, UniversalTime}},
			{Name: "EU", From: 1978, To: 1978, In: time.October, On: Day{Form: DayNum, Num: 1}, At: Time{h, UniversalTime}},
			{Name: "EU", From: 1979, To: 1995, In: time.September, On: lastSun, At: Time{h, UniversalTime}},
			{Name: "EU", From: 1981, To: MaxYear, In: time.March, On: lastSun, At: Time{h, UniversalTime}, Save: h, Letter: "S"},
			{Name: "EU", From: 1996, To: MaxYear, In: time.October, On: lastSun, At: Time{h, UniversalTime}},
		},
		Zones: []Zone{{
			Name: "Europe/Zurich",
			Lines: []ZoneLine{
				{Offset: 34*time.Minute + 8*time.Second, Format: "LMT",
					Until: Until{Defined: true, Year: 1853, Month: time.July, Day: Day{Form: DayNum, Num: 16}}},
				{Offset: 29*time.Minute + 45*time.Second + 500*time.Millisecond, Format: "BMT",
					Until: Until{Defined: true, Year: 1894, Month: time.June, Day: Day{Form: DayNum, Num: 1}}},
				{Offset: h, Rules: ZoneRules{Form: RulesNamed, Name: "Swiss"}, Format: "CE%sT",
					Until: Until{Defined: true, Year: 1981, Month: time.January, Day: Day{Form: DayNum, Num: 1}}},
				{Offset: h, Rules: ZoneRules{Form: RulesNamed, Name: "EU"}, Format: "CE%sT"},
			},
		}},
		Links: []Link{{Target: "Europe/Zurich", Name: "Europe/Vaduz"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_SkipsLeapLines(t *testing.T) {
	input := "Leap\t2016\tDec\t31\t23:59:60\t+\tS\nExpires\t2025\tJun\t28\t00:00:00\n"
	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(File{}, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown line", "Foo bar", "unexpected line"},
		{"short rule", "Rule EU 1981 max - Mar lastSun 1:00u 1:00", "expected 10 fields"},
		{"bad month", "Rule EU 1981 max - Mrz lastSun 1:00u 1:00 S", "invalid month"},
		{"bad day", "Rule EU 1981 max - Mar lastSonntag 1:00u 1:00 S", "ON"},
		{"digit name", "Rule 1EU 1981 max - Mar lastSun 1:00u 1:00 S", "NAME"},
		{"bad offset", "Zone Europe/X 1:xx - XST", "STDOFF"},
		{"dot dot", "Zone ../etc 1:00 - XST", "invalid name"},
		{"missing continuation", "Zone Europe/X 1:00 - XST 1990", "missing continuation"},
		{"unterminated quote", `Zone "Europe/X 1:00 - XST`, "unterminated quote"},
		{"short link", "Link Europe/X", "expected 3 fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	_, err := Parse(strings.NewReader("Rule EU 1981 max - Mar lastSun 1:00u 1:00 S\nBogus"))
	var pe *parseError
	if !errors.As(err, &pe) || pe.line != 2 {
		t.Errorf("Parse() = %v, want parse error on line 2", err)
	}
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   # comment only", nil},
		{"Rule\tEU  1981 # trailing", []string{"Rule", "EU", "1981"}},
		{`Zone "Odd Name#1" 1:00`, []string{"Zone", "Odd Name#1", "1:00"}},
		{`Rule X 1 2 - Jan 1 0 0 ""`, []string{"Rule", "X", "1", "2", "-", "Jan", "1", "0", "0", ""}},
	}
	for _, tt := range tests {
		got, err := splitLine(tt.in)
		if err != nil {
			t.Errorf("splitLine(%q): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("splitLine(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"-", 0},
		{"2", 2 * time.Hour},
		{"2:00", 2 * time.Hour},
		{"01:28:14", time.Hour + 28*time.Minute + 14*time.Second},
		{"00:19:32.13", 19*time.Minute + 32*time.Second + 130*time.Millisecond},
		{"24:00", 24 * time.Hour},
		{"260:00", 260 * time.Hour},
		{"-2:30", -(2*time.Hour + 30*time.Minute)},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	for _, in := range []string{"", "a", "1:60", "1:2:3:4", "1:00:00.x"} {
		if _, err := parseDuration(in); err == nil {
			t.Errorf("parseDuration(%q) succeeded", in)
		}
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in   string
		want Day
	}{
		{"5", Day{Form: DayNum, Num: 5}},
		{"lastSun", Day{Form: DayLast, Weekday: time.Sunday}},
		{"lastThursday", Day{Form: DayLast, Weekday: time.Thursday}},
		{"Sun>=8", Day{Form: DayAfter, Num: 8, Weekday: time.Sunday}},
		{"Sat<=25", Day{Form: DayBefore, Num: 25, Weekday: time.Saturday}},
		{"Fri>=1", Day{Form: DayAfter, Num: 1, Weekday: time.Friday}},
	}
	for _, tt := range tests {
		got, err := parseDay(tt.in)
		if err != nil {
			t.Errorf("parseDay(%q): %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseDay(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
	for _, in := range []string{"0", "32", "lastX", "Sun>=", "Sun>=40", "T>=1", "Sunday"} {
		if _, err := parseDay(in); err == nil {
			t.Errorf("parseDay(%q) succeeded", in)
		}
	}
}

func TestParseYear(t *testing.T) {
	for in, want := range map[string]Year{"1990": 1990, "max": MaxYear, "ma": MaxYear, "minimum": MinYear} {
		got, err := parseYear(in, 0)
		if err != nil || got != want {
			t.Errorf("parseYear(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if got, _ := parseYear("only", 1977); got != 1977 {
		t.Errorf("parseYear(only) = %v, want 1977", got)
	}
	if _, err := parseYear("only", 0); err == nil {
		t.Error("parseYear(only) without FROM succeeded")
	}
}
