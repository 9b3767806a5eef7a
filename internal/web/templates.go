package web

import (
	"bytes"
	"html/template"

	"github.com/jaminalder/tictactoe-history/internal/app"
	"github.com/jaminalder/tictactoe-history/internal/domain"
)

type templates struct {
	base  *template.Template
	game  *template.Template
	board *template.Template
	index *template.Template
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Parse(`<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic-Tac-Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org@1.9.12/dist/ext/sse.js"></script>
</head><body>{{template "content" .}}</body></html>`))
	// Define the board template within the same set so game can include it
	template.Must(base.New("board").Parse(boardTemplate))
	index := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Tic-Tac-Toe</h1>
<form action="/game" method="post"><button>New game</button></form>`))
	game := template.Must(template.Must(base.Clone()).New("content").Parse(`<h1>Tic-Tac-Toe</h1>
<div hx-ext="sse" hx-sse="connect:/game/{{.ID}}/events">
  <div hx-sse="swap:board">{{template "board" .}}</div>
</div>`))
	// Standalone board template used for fragment rendering
	board := template.Must(template.New("board_only").Parse(boardTemplate))
	return &templates{base: base, game: game, board: board, index: index}
}

// renderTemplate executes t, or the named template of t's set when name is
// set. Pages use "base" so the layout wraps their content.
func renderTemplate(t *template.Template, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if name == "" {
		err = t.Execute(&buf, data)
	} else {
		err = t.ExecuteTemplate(&buf, name, data)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Squares are disabled once filled, and all of them once the game is over.
// History buttons carry the serialised snapshot they jump to.
const boardTemplate = `<div id="board">
  {{if .Winner}}<p class="result"><strong>{{.Winner}} is the winner!</strong></p>
  {{else if .Draw}}<p class="result"><strong>It's a draw!</strong></p>
  {{else}}<p class="turn">{{.Turn}} to move</p>
  {{end}}
  <table><tbody>
  {{range .Rows}}<tr>
    {{range .}}<td><form action="/game/{{$.ID}}/play" method="post" hx-post="/game/{{$.ID}}/play" hx-target="#board" hx-swap="outerHTML">
      <button class="game-square" name="id" value="{{.Index}}" data-id="{{.Index}}"{{if .Mark}} aria-pressed="true"{{end}}{{if .Disabled}} disabled{{end}}>{{.Mark}}</button>
    </form></td>
    {{end}}</tr>
  {{end}}</tbody></table>
  <form action="/game/{{.ID}}/reset" method="post" hx-post="/game/{{.ID}}/reset" hx-target="#board" hx-swap="outerHTML">
    <p><button id="play-again">Play Again</button></p>
  </form>
  {{if .History}}<h2>Game History</h2>
  <ol>
    {{range .History}}<li><form action="/game/{{$.ID}}/history" method="post" hx-post="/game/{{$.ID}}/history" hx-target="#board" hx-swap="outerHTML">
      <button name="board" value="{{.Board}}" data-history="{{.Board}}">Go to move # {{.Move}}</button>
    </form></li>
    {{end}}
  </ol>
  {{end}}
</div>
`

type squareView struct {
	Index    int
	Mark     string
	Disabled bool
}

type historyView struct {
	Move  int
	Board string
}

// boardView is everything the board fragment shows; templates never see
// the domain types directly.
type boardView struct {
	ID      string
	Turn    string
	Winner  string
	Draw    bool
	Rows    [3][3]squareView
	History []historyView
}

func newBoardView(gs app.Session) boardView {
	st := gs.State
	over := st.Status.Over()
	v := boardView{
		ID:     gs.ID,
		Turn:   st.Turn.String(),
		Winner: st.Winner.String(),
		Draw:   st.Status == domain.Draw,
	}
	for i, c := range st.Board {
		v.Rows[i/3][i%3] = squareView{
			Index:    i,
			Mark:     c.String(),
			Disabled: over || c != domain.Empty,
		}
	}
	for k, b := range st.History {
		v.History = append(v.History, historyView{Move: k + 1, Board: domain.FormatBoard(b)})
	}
	return v
}
