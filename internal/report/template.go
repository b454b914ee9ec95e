package report

// Template is the dashboard document. Item data only reaches the page
// through the two base64 tokens, which the script decodes in the browser;
// a token that fails to decode renders as an empty list.
const Template = `<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="riskwatch-run" content="{{.RunID | html}}">
<title>{{.Title | html}}</title>
<style>
  :root {
    --bg: #0f172a;
    --panel: #1e293b;
    --text: #e2e8f0;
    --muted: #94a3b8;
    --border: #334155;
    --accent: #38bdf8;
    --red: #ef4444;
    --amber: #f59e0b;
    --green: #22c55e;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Noto Sans KR', sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.6;
    max-width: 960px;
    margin: 0 auto;
    padding: 20px;
  }
  h1 { font-size: 1.5rem; font-weight: 700; color: var(--accent); }
  .muted { color: var(--muted); font-size: 0.85rem; }

  .header {
    display: flex;
    justify-content: space-between;
    align-items: flex-end;
    border-bottom: 2px solid var(--accent);
    padding-bottom: 12px;
    margin-bottom: 16px;
  }

  .counts { display: flex; gap: 8px; margin-bottom: 16px; }
  .count {
    flex: 1;
    background: var(--panel);
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 10px;
    text-align: center;
  }
  .count strong { display: block; font-size: 1.4rem; }
  .count.red strong { color: var(--red); }
  .count.amber strong { color: var(--amber); }
  .count.green strong { color: var(--green); }

  .alert {
    background: rgba(239, 68, 68, 0.15);
    border: 1px solid var(--red);
    border-radius: 6px;
    padding: 8px 12px;
    margin-bottom: 16px;
  }

  .filters { display: flex; flex-wrap: wrap; gap: 6px; margin-bottom: 16px; }
  .filters button {
    background: var(--panel);
    color: var(--text);
    border: 1px solid var(--border);
    border-radius: 999px;
    padding: 4px 14px;
    cursor: pointer;
  }
  .filters button.active { background: var(--accent); color: var(--bg); border-color: var(--accent); }

  #items { list-style: none; }
  #items li {
    display: flex;
    align-items: center;
    gap: 10px;
    background: var(--panel);
    border: 1px solid var(--border);
    border-radius: 6px;
    padding: 10px 12px;
    margin-bottom: 8px;
  }
  #items a { color: var(--text); text-decoration: none; flex: 1; }
  #items a:hover { color: var(--accent); }
  #items .title { flex: 1; }
  .badge {
    font-size: 0.75rem;
    font-weight: 700;
    border-radius: 4px;
    padding: 2px 8px;
    color: var(--bg);
  }
  .badge.red { background: var(--red); }
  .badge.amber { background: var(--amber); }
  .badge.green { background: var(--green); }
  .keyword { color: var(--accent); font-size: 0.8rem; white-space: nowrap; }
  .date { color: var(--muted); font-size: 0.8rem; white-space: nowrap; }
  .empty { color: var(--muted); text-align: center; padding: 24px; }

  .footer { margin-top: 24px; font-size: 0.75rem; color: var(--muted); }
</style>
</head>
<body>

<div class="header">
  <div>
    <h1>{{.Title | html}}</h1>
    <div class="muted">{{.Total}} items</div>
  </div>
  <div class="muted">Generated {{.GeneratedAt | html}}</div>
</div>

<div class="counts">
{{- range .Counts}}
  <div class="count {{.Class}}"><strong>{{.Count}}</strong>{{.Tier}}</div>
{{- end}}
</div>

{{- if .Fallback}}
<div class="alert">데이터 수집에 실패했습니다. 모든 소스가 응답하지 않았습니다.</div>
{{- end}}

<div class="filters" id="filters"></div>
<ul id="items"></ul>

<div class="footer">
  {{- if .Failed}}
  <p>Unavailable:
  {{- range $i, $f := .Failed}}{{if $i}},{{end}} {{$f.Keyword | html}} ({{$f.Reason | html}}){{end}}
  </p>
  {{- end}}
  <p>Run {{.RunID | html}}</p>
</div>

<script>
(function () {
  "use strict";

  var KEYWORDS = "{{.KeywordsToken}}";
  var ITEMS = "{{.ItemsToken}}";

  function decode(token) {
    try {
      var bin = atob(token);
      var bytes = new Uint8Array(bin.length);
      for (var i = 0; i < bin.length; i++) {
        bytes[i] = bin.charCodeAt(i);
      }
      var value = JSON.parse(new TextDecoder("utf-8").decode(bytes));
      return Array.isArray(value) ? value : [];
    } catch (e) {
      return [];
    }
  }

  var keywords = decode(KEYWORDS);
  var items = decode(ITEMS);
  var active = null;

  var RANK = { RED: 0, AMBER: 1, GREEN: 2 };

  function rank(it) {
    var r = RANK[String(it.risk)];
    return r === undefined ? 3 : r;
  }

  // RED first; ties keep collection order.
  function byRisk(list) {
    return list
      .map(function (it, i) { return { it: it, i: i }; })
      .sort(function (a, b) { return rank(a.it) - rank(b.it) || a.i - b.i; })
      .map(function (p) { return p.it; });
  }

  function el(tag, cls, text) {
    var node = document.createElement(tag);
    if (cls) node.className = cls;
    if (text !== undefined) node.textContent = text;
    return node;
  }

  function safeLink(link) {
    return typeof link === "string" && /^https?:\/\//i.test(link);
  }

  function renderFilters() {
    var box = document.getElementById("filters");
    box.textContent = "";
    [null].concat(keywords).forEach(function (kw) {
      var btn = el("button", kw === active ? "active" : "", kw === null ? "전체" : kw);
      btn.addEventListener("click", function () {
        active = kw;
        renderFilters();
        renderItems();
      });
      box.appendChild(btn);
    });
  }

  function renderItems() {
    var list = document.getElementById("items");
    list.textContent = "";
    var shown = byRisk(items.filter(function (it) {
      return active === null || it.keyword === active;
    }));
    if (shown.length === 0) {
      list.appendChild(el("li", "empty", "표시할 항목이 없습니다"));
      return;
    }
    shown.forEach(function (it) {
      var risk = String(it.risk || "GREEN");
      var li = el("li");
      li.appendChild(el("span", "badge " + risk.toLowerCase(), risk));
      li.appendChild(el("span", "keyword", it.keyword));
      if (safeLink(it.link)) {
        var a = el("a", "title", it.title);
        a.href = it.link;
        a.target = "_blank";
        a.rel = "noopener noreferrer";
        li.appendChild(a);
      } else {
        li.appendChild(el("span", "title", it.title));
      }
      li.appendChild(el("span", "date", it.date));
      list.appendChild(li);
    });
  }

  renderFilters();
  renderItems();
})();
</script>
</body>
</html>
`
