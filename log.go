package zran

import "github.com/zrajna/indexed-gzip/internal/capnslog"

var log = capnslog.NewPackageLogger("github.com/zrajna/indexed-gzip", "zran")
