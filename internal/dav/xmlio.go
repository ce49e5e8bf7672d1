package dav

import "github.com/hearthdav/caldavd/pkg/webdavxml"

func marshalErrorBody(ns, local string) ([]byte, error) {
	return webdavxml.Marshal(NewErrorBody(ns, local), ErrorRoot)
}

func marshalMultistatus(ms *Multistatus) ([]byte, error) {
	return webdavxml.Marshal(ms, MultistatusRoot)
}
