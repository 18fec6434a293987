// Package snippets renders copy-paste client code that talks to the
// splitkit HTTP API.
package snippets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

type Framework string

const (
	FrameworkHTML   Framework = "html"
	FrameworkReact  Framework = "react"
	FrameworkNextJS Framework = "nextjs"
)

// Frameworks lists the supported frameworks in prompt order.
var Frameworks = []Framework{FrameworkReact, FrameworkNextJS, FrameworkHTML}

type Config struct {
	ExperimentID string
	ServerURL    string
	// Metric is the conversion event the snippet reports.
	Metric   string
	Variants []string
	// Winner is the declared winning variant id, empty while the experiment
	// is undecided. WinnerConfig is that variant's configuration.
	Winner       string
	WinnerConfig any
}

type SnippetFile struct {
	Filename string
	Content  string
}

type templateData struct {
	ExperimentID     string
	ExperimentPascal string
	ServerURL        string
	Metric           string
	VariantsJSON     string
	Winner           string
	WinnerConfigJSON string
	UseClient        bool
}

func Generate(framework Framework, cfg Config) ([]SnippetFile, error) {
	if cfg.ExperimentID == "" {
		return nil, fmt.Errorf("experiment id is required")
	}
	data, err := buildTemplateData(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Winner != "" {
		return generateStaticWinner(framework, data)
	}

	switch framework {
	case FrameworkHTML:
		return generateHTML(data)
	case FrameworkReact:
		return generateReact(data)
	case FrameworkNextJS:
		data.UseClient = true
		return generateReact(data)
	}
	return nil, fmt.Errorf("unknown framework %q", framework)
}

func buildTemplateData(cfg Config) (templateData, error) {
	variants := cfg.Variants
	if variants == nil {
		variants = []string{}
	}
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return templateData{}, err
	}
	winnerJSON, err := json.MarshalIndent(cfg.WinnerConfig, "", "  ")
	if err != nil {
		return templateData{}, fmt.Errorf("failed to encode winner config: %w", err)
	}

	metric := cfg.Metric
	if metric == "" {
		metric = "conversion"
	}

	return templateData{
		ExperimentID:     cfg.ExperimentID,
		ExperimentPascal: toPascalCase(cfg.ExperimentID),
		ServerURL:        strings.TrimRight(cfg.ServerURL, "/"),
		Metric:           metric,
		VariantsJSON:     string(variantsJSON),
		Winner:           cfg.Winner,
		WinnerConfigJSON: string(winnerJSON),
	}, nil
}

// toPascalCase turns hero_headline into HeroHeadline.
func toPascalCase(s string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func renderTemplate(name, content string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func render(files map[string]string, order []string, data templateData) ([]SnippetFile, error) {
	out := make([]SnippetFile, 0, len(order))
	for _, name := range order {
		content, err := renderTemplate(name, files[name], data)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}
		out = append(out, SnippetFile{Filename: name, Content: content})
	}
	return out, nil
}

const staticWinnerTS = `// {{.ExperimentID}} is complete. Winner: {{.Winner}}
// Replace the experiment hook with this static configuration.
export const {{.ExperimentPascal}}Config = {{.WinnerConfigJSON}};
`

const staticWinnerHTML = `<!-- {{.ExperimentID}} is complete. Winner: {{.Winner}} -->
<script>
  window.{{.ExperimentPascal}}Config = {{.WinnerConfigJSON}};
</script>
`

func generateStaticWinner(framework Framework, data templateData) ([]SnippetFile, error) {
	if framework == FrameworkHTML {
		return render(map[string]string{"winner.html": staticWinnerHTML}, []string{"winner.html"}, data)
	}
	name := data.ExperimentID + ".config.ts"
	return render(map[string]string{name: staticWinnerTS}, []string{name}, data)
}

const htmlSnippet = `<!-- splitkit experiment: {{.ExperimentID}} -->
<script>
(function () {
  var SERVER = '{{.ServerURL}}';
  var EXPERIMENT = '{{.ExperimentID}}';

  function api(path, init) {
    init = init || {};
    init.credentials = 'include';
    return fetch(SERVER + path, init);
  }

  window.splitkit = window.splitkit || {};
  window.splitkit.track = function (name, properties, revenue) {
    return api('/api/events?url=' + encodeURIComponent(location.href), {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ name: name, properties: properties || {}, revenue: revenue }),
    }).catch(function () {});
  };

  var query = '?url=' + encodeURIComponent(location.href) +
    '&referrer=' + encodeURIComponent(document.referrer);

  api('/api/experiments/' + EXPERIMENT + '/assignment' + query)
    .then(function (res) { return res.status === 200 ? res.json() : null; })
    .then(function (assignment) {
      if (!assignment) return;
      document.dispatchEvent(new CustomEvent('splitkit:assignment', { detail: assignment }));
      return api('/api/experiments/' + EXPERIMENT + '/exposure', { method: 'POST' });
    })
    .catch(function () {});

  // Convert with: window.splitkit.track('{{.Metric}}')
})();
</script>
`

func generateHTML(data templateData) ([]SnippetFile, error) {
	return render(map[string]string{"splitkit.html": htmlSnippet}, []string{"splitkit.html"}, data)
}

const clientTS = `const SERVER_URL = '{{.ServerURL}}';

export interface Assignment<C = Record<string, unknown>> {
  experiment_id: string;
  variant_id: string;
  variant_name: string;
  is_control: boolean;
  session_id: string;
  config?: C;
}

function query(): string {
  return '?url=' + encodeURIComponent(window.location.href) +
    '&referrer=' + encodeURIComponent(document.referrer);
}

export async function fetchAssignment<C>(experimentId: string): Promise<Assignment<C> | null> {
  const res = await fetch(SERVER_URL + '/api/experiments/' + experimentId + '/assignment' + query(), {
    credentials: 'include',
  });
  return res.status === 200 ? res.json() : null;
}

export function trackExposure(experimentId: string): void {
  fetch(SERVER_URL + '/api/experiments/' + experimentId + '/exposure', {
    method: 'POST',
    credentials: 'include',
  }).catch(() => {});
}

export function trackEvent(name: string, properties: Record<string, unknown> = {}, revenue?: number): void {
  fetch(SERVER_URL + '/api/events' + query(), {
    method: 'POST',
    credentials: 'include',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify({ name, properties, revenue }),
  }).catch(() => {});
}
`

const hookTS = `{{if .UseClient}}'use client';

{{end}}import { useCallback, useEffect, useState } from 'react';
import { Assignment, fetchAssignment, trackEvent, trackExposure } from './splitkit';

// Variants: {{.VariantsJSON}}
export function use{{.ExperimentPascal}}<C = Record<string, unknown>>() {
  const [assignment, setAssignment] = useState<Assignment<C> | null>(null);
  const [loading, setLoading] = useState(true);

  useEffect(() => {
    let cancelled = false;
    fetchAssignment<C>('{{.ExperimentID}}')
      .then((a) => {
        if (cancelled) return;
        setAssignment(a);
        if (a) trackExposure('{{.ExperimentID}}');
      })
      .catch(() => {})
      .finally(() => !cancelled && setLoading(false));
    return () => {
      cancelled = true;
    };
  }, []);

  const convert = useCallback((revenue?: number) => {
    trackEvent('{{.Metric}}', { experiment_id: '{{.ExperimentID}}', variant_id: assignment?.variant_id }, revenue);
  }, [assignment]);

  return { assignment, config: assignment?.config, loading, convert };
}
`

func generateReact(data templateData) ([]SnippetFile, error) {
	hook := "use" + data.ExperimentPascal + ".ts"
	return render(map[string]string{
		"splitkit.ts": clientTS,
		hook:          hookTS,
	}, []string{"splitkit.ts", hook}, data)
}
