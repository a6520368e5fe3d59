package probe

import "context"

// GlobalsExpression enumerates global property names that look like sound or
// sample registries, capped at 200 entries.
const GlobalsExpression = `Object.keys(window).filter(k => /sound|sample/i.test(k)).slice(0, 200)`

const (
	soundMapTypeExpression       = `Object.prototype.toString.call(window.soundMap)`
	soundMapHasGetExpression     = `typeof window.soundMap?.get`
	soundMapHasEntriesExpression = `typeof window.soundMap?.entries`
	soundMapKeySampleExpression  = `(() => {
  const sm = window.soundMap;
  const obj = sm?.get ? sm.get() : sm;
  if (!obj || typeof obj !== 'object') return null;
  return Object.keys(obj).slice(0, 50);
})()`
)

// SoundMapReport describes the shape of the page's soundMap global: its type
// tag, whether it exposes get/entries accessors, and a sample of up to 50
// keys of its contents.
type SoundMapReport struct {
	Type       interface{} `json:"soundMapType"`
	HasGet     interface{} `json:"soundMapHasGet"`
	HasEntries interface{} `json:"soundMapHasEntries"`
	KeySample  interface{} `json:"soundMapKeySample"`
}

// ListGlobals evaluates GlobalsExpression on the session.
func ListGlobals(ctx context.Context, s *Session) (interface{}, error) {
	return s.EvaluateData(ctx, GlobalsExpression)
}

// InspectSoundMap probes window.soundMap with four fixed evaluations and
// assembles the report.
func InspectSoundMap(ctx context.Context, s *Session) (*SoundMapReport, error) {
	report := &SoundMapReport{}
	probes := []struct {
		expression string
		into       *interface{}
	}{
		{soundMapTypeExpression, &report.Type},
		{soundMapHasGetExpression, &report.HasGet},
		{soundMapHasEntriesExpression, &report.HasEntries},
		{soundMapKeySampleExpression, &report.KeySample},
	}
	for _, p := range probes {
		val, err := s.EvaluateData(ctx, p.expression)
		if err != nil {
			return nil, err
		}
		*p.into = val
	}
	return report, nil
}
