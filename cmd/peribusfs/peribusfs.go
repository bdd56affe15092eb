// Command peribusfs serves the synthetic tree over 9P: the scene
// subtree with its versioned code execution, PTY-backed terminals, the
// routes manager, and the display control file. Clients interact with
// everything through walk/open/read/write/clunk.
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lionkov/go9p/p"
	"github.com/lionkov/go9p/p/srv"
	"github.com/peripherialabs/peribus/internal/config"
	"github.com/peripherialabs/peribus/internal/fsys"
	"github.com/peripherialabs/peribus/internal/linuxerr"
	"github.com/peripherialabs/peribus/internal/netutil"
	"github.com/peripherialabs/peribus/internal/p9util"
	"github.com/peripherialabs/peribus/internal/storage"
	"github.com/peripherialabs/peribus/internal/stream"
	log "github.com/sirupsen/logrus"
)

// aux is the per-fid protocol state: the synthetic fid plus a packed
// directory buffer for directory reads.
type aux struct {
	fid  *fsys.Fid
	dirb p9util.DirBuffer
}

type ops struct {
	root *fsys.Node
}

var (
	_ srv.ReqOps = (*ops)(nil)
	_ srv.FidOps = (*ops)(nil)
)

func logRespondError(r *srv.Req, err error) {
	log.Infof("Rerror: %s", err)
	var e linuxerr.E
	if errors.As(err, &e) {
		r.RespondError(&p.Error{Err: e.Text, Errornum: e.Num})
	} else {
		r.RespondError(err)
	}
}

func (ops *ops) FidDestroy(fid *srv.Fid) {
	if fid.Aux == nil {
		return
	}
	fid.Aux.(*aux).fid.Clunk()
}

func (ops *ops) Attach(r *srv.Req) {
	r.Fid.Aux = &aux{fid: fsys.NewFid(ops.root)}
	qid := p9util.NodeQID(ops.root)
	r.RespondRattach(&qid)
}

func (ops *ops) Walk(r *srv.Req) {
	a := r.Fid.Aux.(*aux)
	node := a.fid.Node
	if len(r.Tc.Wname) == 0 {
		r.Newfid.Aux = &aux{fid: fsys.NewFid(node)}
		r.RespondRwalk(nil)
		return
	}
	var qids []p.Qid
	for _, name := range r.Tc.Wname {
		child, err := node.Lookup(name)
		if err != nil {
			if len(qids) == 0 {
				logRespondError(r, err)
				return
			}
			break
		}
		node = child
		qids = append(qids, p9util.NodeQID(node))
	}
	if len(qids) == len(r.Tc.Wname) {
		r.Newfid.Aux = &aux{fid: fsys.NewFid(node)}
	}
	r.RespondRwalk(qids)
}

func (ops *ops) Open(r *srv.Req) {
	a := r.Fid.Aux.(*aux)
	node := a.fid.Node
	if r.Tc.Mode&p.ORCLOSE != 0 {
		logRespondError(r, linuxerr.EACCES)
		return
	}
	if node.IsDir() {
		a.dirb.Reset()
		var dir p.Dir
		for _, child := range node.Children() {
			p9util.NodeDirVar(child, &dir)
			a.dirb.Write(&dir)
		}
	}
	qid := p9util.NodeQID(node)
	r.RespondRopen(&qid, 0)
}

// Read dispatches as its own task: a blocked reader on one fid must
// never delay another fid's traffic, and streaming files block by
// design until their producer marks a batch ready.
func (ops *ops) Read(r *srv.Req) {
	a := r.Fid.Aux.(*aux)
	node := a.fid.Node
	if node.IsDir() {
		if err := p.InitRread(r.Rc, r.Tc.Count); err != nil {
			logRespondError(r, err)
			return
		}
		count, err := a.dirb.Read(r.Rc.Data[:r.Tc.Count], int(r.Tc.Offset))
		if err != nil {
			logRespondError(r, err)
			return
		}
		p.SetRreadCount(r.Rc, uint32(count))
		r.Respond()
		return
	}
	go func() {
		data, err := node.File().Read(a.fid, int64(r.Tc.Offset), int(r.Tc.Count))
		if err != nil {
			if errors.Is(err, stream.ErrCanceled) {
				logRespondError(r, linuxerr.EINTR)
			} else {
				logRespondError(r, err)
			}
			return
		}
		if err := p.InitRread(r.Rc, r.Tc.Count); err != nil {
			logRespondError(r, err)
			return
		}
		count := copy(r.Rc.Data[:r.Tc.Count], data)
		p.SetRreadCount(r.Rc, uint32(count))
		r.Respond()
	}()
}

func (ops *ops) Write(r *srv.Req) {
	a := r.Fid.Aux.(*aux)
	node := a.fid.Node
	if node.IsDir() {
		logRespondError(r, linuxerr.EACCES)
		return
	}
	n, err := node.File().Write(a.fid, int64(r.Tc.Offset), r.Tc.Data)
	if err != nil {
		logRespondError(r, err)
		return
	}
	r.RespondRwrite(uint32(n))
}

func (ops *ops) Clunk(r *srv.Req) {
	r.Fid.Aux.(*aux).fid.Clunk()
	r.RespondRclunk()
}

func (ops *ops) Create(r *srv.Req) {
	logRespondError(r, linuxerr.EACCES)
}

func (ops *ops) Remove(r *srv.Req) {
	logRespondError(r, linuxerr.EACCES)
}

func (ops *ops) Stat(r *srv.Req) {
	dir := p9util.NodeDir(r.Fid.Aux.(*aux).fid.Node)
	r.RespondRstat(&dir)
}

func (ops *ops) Wstat(r *srv.Req) {
	logRespondError(r, linuxerr.EPERM)
}

func main() {
	base := flag.String("base", config.DefaultBaseDirectoryPath, "Base directory for configuration and state")
	initialize := flag.Bool("init", false, "Write an initial config to the base directory and exit")
	debug := flag.Bool("D", false, "Print 9P dialogs")
	flag.Parse()

	if *initialize {
		if err := config.Initialize(*base); err != nil {
			log.Fatalf("Could not initialize %q: %v", *base, err)
		}
		return
	}

	gopsListen()

	cfg, err := config.Load(*base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", *base, err)
	}

	store, err := storage.NewStore(cfg)
	if err != nil {
		log.Fatalf("Could not create state store: %v", err)
	}

	server := newServer(cfg, store)

	fs := &srv.Srv{}
	fs.Dotu = false
	fs.Id = "peribus"
	fs.Upool = usersPool()
	if *debug {
		fs.Debuglevel = srv.DbgPrintFcalls
	}
	if !fs.Start(&ops{root: server.root}) {
		log.Fatal("go9p/p/srv.Srv.Start returned false")
	}

	listener, err := netutil.Listen(cfg.ListenNet, cfg.ListenAddr)
	if err != nil {
		log.Fatalf("Could not start net listener: %v", err)
	}
	go func() {
		if err := fs.StartListener(listener); err != nil {
			log.Fatalf("Could not start 9P listener: %v", err)
		}
	}()
	log.WithFields(log.Fields{
		"net":  cfg.ListenNet,
		"addr": cfg.ListenAddr,
	}).Info("Serving")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Infof("Got signal %q, shutting down.", sig)
	server.shutdown()
	_ = listener.Close()
}
