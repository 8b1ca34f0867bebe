// package models defines the data model for the DeWorm web service
package models
