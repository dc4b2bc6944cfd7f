package api

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"autodl/internal/logs"
)

var uiTemplates = template.Must(template.New("ui").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
}).Parse(`{{define "header"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>autodl{{if .Title}} · {{.Title}}{{end}}</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    header{margin-bottom:24px}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    a:hover{text-decoration:underline}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .card.error{border-color:#f2b8b5;background:#fff6f6}
    .row{display:flex;gap:12px;flex-wrap:wrap;align-items:center}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .btn.secondary{background:#444}
    .btn.danger{background:#b3261e}
    input[type=text],textarea,select{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px;width:100%;box-sizing:border-box}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .list{margin:0;padding-left:18px}
    pre{background:#f3f3f3;padding:12px;border-radius:8px;overflow-x:auto;white-space:pre-wrap}
    footer{margin-top:24px;color:#666;font-size:12px}
  </style>
</head>
<body>
  <header>
    <h1><a href="/">autodl</a></h1>
    <div class="row muted"><a href="/">Download</a> <a href="/logs">Logs</a> <a href="/metrics">Metrics</a></div>
  </header>
{{end}}

{{define "footer"}}
  <footer>
    <div>API base: <span class="mono">/api/v1</span></div>
  </footer>
</body>
</html>
{{end}}

{{define "index"}}
{{template "header" .}}
  <div class="card">
    <h2>Download</h2>
    <form method="post" action="/download">
      <p><textarea name="url" rows="4" placeholder="One or more URLs separated by spaces or new lines" required></textarea></p>
      <p><label>Output directory
        <select name="output_directory">
        {{range .Sources}}<option value="{{.}}">{{.}}</option>{{end}}
        </select></label></p>
      <p><input type="text" name="subdirectory" placeholder="Subdirectory (optional)"/></p>
      <p><label><input type="checkbox" name="audio_only" value="true"/> Audio only (mp3)</label></p>
      <button class="btn" type="submit">Download</button>
    </form>
  </div>

  <div class="card">
    <h2>Running tasks</h2>
    {{if .Tasks}}
      <ul class="list">
      {{range .Tasks}}
        <li>
          <div><span class="mono">{{.ID}}</span> {{.Kind}}</div>
          {{if .URL}}<div class="muted mono">{{.URL}}</div>{{end}}
          {{if .OutputDirectory}}<div class="muted">{{.OutputDirectory}}{{if .Subdirectory}} / {{.Subdirectory}}{{end}}{{if .AudioOnly}} · audio only{{end}}</div>{{end}}
          <div class="muted"><a href="/logs/{{.LogFile}}">{{.LogFile}}</a></div>
        </li>
      {{end}}
      </ul>
    {{else}}
      <div class="muted">Nothing running</div>
    {{end}}
  </div>

  <div class="card">
    <h2>Downloader</h2>
    <form method="post" action="/update">
      <button class="btn secondary" type="submit">Update downloader</button>
    </form>
  </div>
{{template "footer" .}}
{{end}}

{{define "accepted"}}
{{template "header" .}}
  <div class="card">
    <h2>{{.Heading}}</h2>
    <div>Task <span class="mono">{{.TaskID}}</span></div>
    {{if .Request}}
    <ul class="list">
      <li>URL: <span class="mono">{{.Request.URL}}</span></li>
      <li>Output directory: {{.Request.OutputDirectory}}</li>
      {{if .Request.Subdirectory}}<li>Subdirectory: {{.Request.Subdirectory}}</li>{{end}}
      <li>Audio only: {{.Request.AudioOnly}}</li>
    </ul>
    {{end}}
    <p><a href="/logs/{{.LogFile}}">Follow the log</a> · <a href="/">Back</a></p>
  </div>
{{template "footer" .}}
{{end}}

{{define "error"}}
{{template "header" .}}
  <div class="card error">
    <strong style="color:#b3261e">Error {{.Status}}:</strong> <span class="muted">{{.Error}}</span>
  </div>
  <p><a href="/">Back</a></p>
{{template "footer" .}}
{{end}}

{{define "logs"}}
{{template "header" .}}
  <div class="card">
    <div class="row">
      <h2 style="margin:0">Logs</h2>
      {{if .Logs}}
      <form method="post" action="/logs/all/delete">
        <button class="btn danger" type="submit">Delete all</button>
      </form>
      {{end}}
    </div>
  </div>
  {{range .Logs}}
  <div class="card">
    <div class="row">
      <a class="mono" href="/logs/{{.Name}}">{{.Name}}</a>
      <span class="muted">{{stamp .ModTime}} · {{.Size}} bytes</span>
      <form method="post" action="/logs/{{.Name}}/delete">
        <button class="btn danger" type="submit">Delete</button>
      </form>
    </div>
    <pre>{{.Text}}</pre>
  </div>
  {{else}}
  <div class="card muted">No logs</div>
  {{end}}
{{template "footer" .}}
{{end}}
`))

type logView struct {
	logs.Entry
	Text string
}

// RegisterUIRoutes registers the HTML pages served without JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIIndex)
	router.POST("/download", a.submitLimit, a.UIDownload)
	router.POST("/update", a.submitLimit, a.UISelfUpdate)
	router.GET("/logs", a.UILogs)
	router.GET("/logs/:name", a.GetLog)
	router.DELETE("/logs/:name", a.UIDeleteLog)
	router.POST("/logs/:name/delete", a.UIDeleteLog)
	router.NoRoute(func(c *gin.Context) {
		a.uiError(c, http.StatusNotFound, errors.New("page not found"))
	})
}

// UIIndex renders the download form with the running tasks
func (a *API) UIIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{
		"Sources": a.taskManager.Config().Sources(),
		"Tasks":   a.taskManager.List(),
	})
}

// UIDownload starts a download from the form and shows its task id
func (a *API) UIDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBind(&req); err != nil {
		a.uiError(c, http.StatusBadRequest, err)
		return
	}
	h, err := a.taskManager.SubmitDownload(req.toTask())
	if err != nil {
		log.Warn().Err(err).Str("output_directory", req.OutputDirectory).Msg("download rejected")
		a.uiError(c, submitErrorStatus(err), err)
		return
	}
	c.HTML(http.StatusOK, "accepted", gin.H{
		"Title":   "Download",
		"Heading": "Download started",
		"TaskID":  h.ID(),
		"LogFile": h.ID() + logs.Ext,
		"Request": req,
	})
}

// UISelfUpdate starts a downloader self-update
func (a *API) UISelfUpdate(c *gin.Context) {
	h, err := a.taskManager.SubmitSelfUpdate()
	if err != nil {
		log.Error().Err(err).Msg("self update rejected")
		a.uiError(c, submitErrorStatus(err), err)
		return
	}
	c.HTML(http.StatusOK, "accepted", gin.H{
		"Title":   "Update",
		"Heading": "Downloader update started",
		"TaskID":  h.ID(),
		"LogFile": h.ID() + logs.Ext,
	})
}

// UILogs renders every log file, newest first
func (a *API) UILogs(c *gin.Context) {
	entries, err := a.logStore.List()
	if err != nil {
		a.uiError(c, http.StatusInternalServerError, err)
		return
	}
	views := make([]logView, 0, len(entries))
	for _, e := range entries {
		text, err := a.logStore.Read(e.Name)
		if err != nil {
			// removed between List and Read
			if errors.Is(err, logs.ErrNotFound) {
				continue
			}
			text = err.Error()
		}
		views = append(views, logView{Entry: e, Text: text})
	}
	c.HTML(http.StatusOK, "logs", gin.H{"Title": "Logs", "Logs": views})
}

// UIDeleteLog deletes a log and returns to the logs page
func (a *API) UIDeleteLog(c *gin.Context) {
	name := c.Param("name")
	if err := a.logStore.Delete(name); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("deleting log failed")
		a.uiError(c, logErrorStatus(err), err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/logs")
}

func (a *API) uiError(c *gin.Context, status int, err error) {
	c.HTML(status, "error", gin.H{"Title": "Error", "Status": status, "Error": err.Error()})
}
