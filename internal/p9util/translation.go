package p9util

import (
	"log"
	"os/user"

	"github.com/lionkov/go9p/p"
	"github.com/peripherialabs/peribus/internal/fsys"
)

var (
	NodeUID string
	NodeGID string
)

func init() {
	u, err := user.Current()
	if err != nil {
		log.Fatalf("could not get current user: %v", err)
	}
	NodeUID = u.Username
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		log.Fatalf("could not get group %v: %v", u.Gid, err)
	}
	NodeGID = g.Name
}

func NodeQID(node *fsys.Node) (qid p.Qid) {
	NodeQIDVar(node, &qid)
	return
}

func NodeQIDVar(node *fsys.Node, qid *p.Qid) {
	qid.Path = node.Qpath()
	qid.Version = 0
	qid.Type = 0
	if node.IsDir() {
		qid.Type |= p.QTDIR
	}
}

func NodeDir(node *fsys.Node) (dir p.Dir) {
	NodeDirVar(node, &dir)
	return
}

// NodeDirVar fills dir for a synthetic node. All nodes belong to the
// server's owner; permission checks happen in the files themselves, so
// the advertised modes are informational.
func NodeDirVar(node *fsys.Node, dir *p.Dir) {
	NodeQIDVar(node, &dir.Qid)
	dir.Name = node.Name()
	dir.Uid = NodeUID
	dir.Gid = NodeGID
	if node.IsDir() {
		dir.Mode = p.DMDIR | 0555
	} else {
		dir.Mode = 0644
		dir.Length = uint64(node.File().SizeHint())
	}
}
