/*

Package base provides base data structures and functions for gorse.

The base data structures and functions include:

* Parallel Scheduler

* Hyper-parameters Management

* Random Generator

* Similarity Metrics

* Sparse Data Structures

* Numeric Computing

* Options Management

*/
package base
