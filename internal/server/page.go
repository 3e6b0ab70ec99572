package server

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// viewerPage renders the browser side of the preview. The body is replaced
// wholesale by every content message; title messages set the tab title and a
// kill message shows a notice and closes the tab.
func viewerPage(title, content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHead); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "<title>"+templ.EscapeString(title)+"</title>\n"); err != nil {
			return err
		}
		if _, err := io.WriteString(w, pageStyle); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<body><main id="content" class="markdown-body">`); err != nil {
			return err
		}
		// Rendered document HTML, raw HTML passthrough included
		if _, err := io.WriteString(w, content); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</main>\n"+pageScript+"</body>\n</html>\n")
		return err
	})
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
`

const pageStyle = `<style>
body { margin: 0; background: #fff; color: #1f2328; }
.markdown-body { box-sizing: border-box; max-width: 980px; margin: 0 auto; padding: 45px;
  font: 16px/1.5 -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif; }
.markdown-body h1, .markdown-body h2 { border-bottom: 1px solid #d1d9e0; padding-bottom: .3em; }
.markdown-body pre { background: #f6f8fa; padding: 16px; overflow: auto; border-radius: 6px; }
.markdown-body code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 85%; }
.markdown-body table { border-collapse: collapse; }
.markdown-body td, .markdown-body th { border: 1px solid #d1d9e0; padding: 6px 13px; }
.markdown-body blockquote { margin: 0; padding: 0 1em; color: #59636e; border-left: .25em solid #d1d9e0; }
.markdown-body img { max-width: 100%; }
.markdown-body li:has(> input[type=checkbox]) { list-style: none; }
.livedown-notice { text-align: center; color: #59636e; padding-top: 20vh; }
@media (max-width: 767px) { .markdown-body { padding: 15px; } }
</style>
</head>
`

const pageScript = `<script>
(function () {
  var content = document.getElementById("content");
  var killed = false;
  var delay = 500;

  function connect() {
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var socket = new WebSocket(scheme + location.host + "/ws");

    socket.onopen = function () { delay = 500; };

    socket.onmessage = function (event) {
      var msg;
      try { msg = JSON.parse(event.data); } catch (e) { return; }
      switch (msg.type) {
      case "title":
        document.title = msg.content || "";
        break;
      case "content":
        content.innerHTML = msg.content || "";
        break;
      case "kill":
        killed = true;
        content.innerHTML = '<p class="livedown-notice">Livedown has stopped. You can close this tab.</p>';
        window.close();
        break;
      }
    };

    socket.onclose = function () {
      if (killed) { return; }
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 10000);
    };
  }

  connect();
})();
</script>
`
