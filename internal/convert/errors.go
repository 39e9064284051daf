package convert

import "errors"

// ErrConversion indicates a vendor value could not be translated into the
// canonical device model.
var ErrConversion = errors.New("convert: conversion failed")
