// Package loader combines fetching, transformation and merging into a single
// "load the variables of config X into environment Y" operation.
package loader
