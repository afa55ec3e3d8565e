package submitter

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "submitter")
